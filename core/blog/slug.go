package blog

import (
	"strconv"
	"strings"

	"github.com/gosimple/slug"
)

const (
	defaultSlug = "post"
	maxSlugLen  = 80
)

// Slugify returns the URL-safe form of a post title.
func Slugify(title string) string {
	s := slug.Make(title)
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return defaultSlug
	}
	return s
}

// nthSlug returns the n-th candidate slug for base: base, base-2, base-3...
func nthSlug(base string, n int) string {
	if n <= 1 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}
