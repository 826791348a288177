package cache

import "image"

// ImageCache is one tier of the image cache. Get reports a miss with false;
// it never fails. Put errors are informational: a failed Put leaves the tier
// as it was.
type ImageCache interface {
	Get(key string) (image.Image, bool)
	Put(key string, img image.Image) error
	Len() int
	Clear() error
}
