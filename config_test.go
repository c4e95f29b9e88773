package boardscan

import (
	"testing"

	"go.viam.com/test"
)

func TestApplyOverrides(t *testing.T) {
	pc := DefaultPipelineConfig()
	err := pc.ApplyOverrides(map[string]interface{}{
		"occupancy": map[string]interface{}{
			"min-score":  "5",
			"edge-ratio": []interface{}{map[string]interface{}{"above": 0.05, "points": 4}},
		},
		"localizer": map[string]interface{}{"out-size": 640, "grid-scales": []interface{}{1.0}},
		"workers":   0,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Occupancy.MinScore, test.ShouldEqual, 5)
	// slices are replaced, not merged with the defaults
	test.That(t, pc.Occupancy.EdgeRatio, test.ShouldResemble, []Bucket{{Above: 0.05, Points: 4}})
	test.That(t, pc.Localizer.GridScales, test.ShouldResemble, []float64{1.0})
	test.That(t, pc.Localizer.OutSize, test.ShouldEqual, 640)

	// fields next to an override keep their defaults
	test.That(t, pc.Occupancy.Variance, test.ShouldResemble, DefaultOccupancyConfig().Variance)
	test.That(t, pc.Localizer.TrimRatio, test.ShouldEqual, DefaultLocalizerConfig().TrimRatio)
	test.That(t, pc.Workers, test.ShouldEqual, 1)

	// untouched values keep their defaults
	test.That(t, pc.Template, test.ShouldResemble, DefaultTemplateConfig())
}

func TestApplyOverridesRejects(t *testing.T) {
	pc := DefaultPipelineConfig()
	err := pc.ApplyOverrides(map[string]interface{}{"occupancy": map[string]interface{}{"no-such-thing": 1}})
	test.That(t, err, test.ShouldNotBeNil)

	pc = DefaultPipelineConfig()
	err = pc.ApplyOverrides(map[string]interface{}{"localizer": map[string]interface{}{"out-size": 8}})
	test.That(t, err, test.ShouldNotBeNil)

	pc = DefaultPipelineConfig()
	err = pc.ApplyOverrides(map[string]interface{}{"shape": map[string]interface{}{"block-size": 10}})
	test.That(t, err, test.ShouldNotBeNil)

	pc = DefaultPipelineConfig()
	err = pc.ApplyOverrides(map[string]interface{}{"localizer": map[string]interface{}{"trim-ratio": 0.6}})
	test.That(t, err, test.ShouldNotBeNil)

	pc = DefaultPipelineConfig()
	err = pc.ApplyOverrides(map[string]interface{}{"localizer": map[string]interface{}{"max-trim": 0.5}})
	test.That(t, err, test.ShouldNotBeNil)

	pc = DefaultPipelineConfig()
	test.That(t, pc.ApplyOverrides(nil), test.ShouldBeNil)
}

func TestScannerConfig(t *testing.T) {
	cfg := &ScannerConfig{}
	deps, _, err := cfg.Validate("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(deps), test.ShouldEqual, 0)

	cfg = &ScannerConfig{
		Camera:    "cam",
		Workers:   3,
		TrimRatio: 0.05,
		Template:  map[string]interface{}{"min-margin": 0.2},
	}
	deps, _, err = cfg.Validate("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, deps, test.ShouldResemble, []string{"cam"})

	pc, err := cfg.PipelineConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Workers, test.ShouldEqual, 3)
	test.That(t, pc.Localizer.TrimRatio, test.ShouldEqual, 0.05)
	test.That(t, pc.Template.MinMargin, test.ShouldEqual, 0.2)

	_, _, err = (&ScannerConfig{Workers: -1}).Validate("")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = (&ScannerConfig{TrimRatio: 0.5}).Validate("")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = (&ScannerConfig{OutSize: 10}).Validate("")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = (&ScannerConfig{Shape: map[string]interface{}{"bogus": 1}}).Validate("")
	test.That(t, err, test.ShouldNotBeNil)
}
