package shaders

import (
	_ "embed"
)

//go:embed pixel.wgsl
var PixelWGSL string

//go:embed overlay.wgsl
var OverlayWGSL string
