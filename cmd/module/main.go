package main

import (
	"boardscan"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: boardscan.ScannerModel},
		resource.APIModel{API: camera.API, Model: boardscan.BoardCameraModel},
	)
}
