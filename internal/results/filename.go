package results

import (
	"net/url"
	"path"
	"strings"
)

// FileName builds "{metric}_{city}{ext}" with the extension taken from source.
func FileName(metric, city, source string) string {
	ext := path.Ext(stripQuery(source))
	return sanitize(metric) + "_" + sanitize(city) + ext
}

// ExportName swaps a vector extension for the raster one the exporter writes.
func ExportName(name string) string {
	ext := path.Ext(name)
	if strings.EqualFold(ext, ".svg") {
		return strings.TrimSuffix(name, ext) + ".png"
	}
	return name
}

func stripQuery(source string) string {
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		return u.Path
	}
	if i := strings.IndexAny(source, "?#"); i >= 0 {
		return source[:i]
	}
	return source
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return -1
		}
		return r
	}, s)
}
