package cache

import (
	"fmt"
	"strings"
)

// Size is a requested target size. A nil *Size means native resolution.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Key derives the cache key for url at the given target size. Each size is
// cached independently; the URL is used as-is.
func Key(url string, size *Size) string {
	if size == nil {
		return url
	}
	return url + size.String()
}

var fileNameReplacer = strings.NewReplacer(
	"/", "-", ":", "-", "?", "-", "=", "-",
	"&", "-", "%", "-", "#", "-", " ", "-",
	`"`, "-", "'", "-", "<", "-", ">", "-",
	`\`, "-", "|", "-", "*", "-", ";", "-",
)

// FileName maps a key to a name safe to use inside the cache directory.
// Distinct keys may collapse to the same name (e.g. "a/b" and "a:b"); such
// collisions are tolerated.
func FileName(key string) string {
	return fileNameReplacer.Replace(key)
}
