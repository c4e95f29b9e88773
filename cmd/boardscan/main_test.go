package main

import (
	"os"
	"path/filepath"
	"testing"

	"boardscan"

	"go.viam.com/test"
)

func TestLoadPipelineConfig(t *testing.T) {
	pc, err := loadPipelineConfig("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc, test.ShouldResemble, boardscan.DefaultPipelineConfig())

	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	test.That(t, os.WriteFile(good, []byte(`{"occupancy": {"min-score": 5}, "localizer": {"grid-scales": [1.0]}}`), 0o644), test.ShouldBeNil)

	pc, err = loadPipelineConfig(good)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Occupancy.MinScore, test.ShouldEqual, 5)
	test.That(t, pc.Localizer.GridScales, test.ShouldResemble, []float64{1.0})

	bad := filepath.Join(dir, "bad.json")
	test.That(t, os.WriteFile(bad, []byte(`{"localizer": {"trim-ratio": 0.7}}`), 0o644), test.ShouldBeNil)
	_, err = loadPipelineConfig(bad)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = loadPipelineConfig(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
