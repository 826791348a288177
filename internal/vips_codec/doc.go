// Package vips_codec implements image_codec.Codec on libvips. It needs cgo
// and is only compiled with -tags vips.
package vips_codec
