package parse

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"webb-archiver/pkg/utils"
)

// ResolveReference resolves an href found in a gallery page against base.
// Root-relative detail links ("/contents/media/...") and protocol-relative asset links ("//stsci-opo.org/...") both come out absolute
func ResolveReference(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: base URL '%s': %w", utils.ErrParsing, base, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("%w: href URL '%s': %w", utils.ErrParsing, href, err)
	}

	resolved := baseURL.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", fmt.Errorf("%w: resolved URL '%s' is not http(s)", utils.ErrParsing, resolved)
	}
	return resolved.String(), nil
}

// ExtensionFromURL returns the second dot-delimited token of the URL's last path segment.
// For ".../image.full.tif" that is "full", not "tif"; archived filenames depend on this exact rule
func ExtensionFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: download URL '%s': %w", utils.ErrParsing, rawURL, err)
	}

	segment := path.Base(u.Path)
	tokens := strings.Split(segment, ".")
	if len(tokens) < 2 || tokens[1] == "" {
		return "", fmt.Errorf("%w: no extension in last segment '%s' of URL '%s'", utils.ErrParsing, segment, rawURL)
	}
	return tokens[1], nil
}
