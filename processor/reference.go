package processor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Reference is a URL found in a document, either Internal or External.
type Reference interface {
	isReference()
}

// Internal points into the copied site. The fragment is kept apart from Path
// and never takes part in normalization.
type Internal struct {
	Path     string
	Fragment string
}

func (Internal) isReference() {}

// RootRelative reports whether the path is anchored at the site root.
func (r Internal) RootRelative() bool { return strings.HasPrefix(r.Path, "/") }

// External is left exactly as written: other origins, non-http schemes,
// bare fragments and empty values.
type External struct {
	URL string
}

func (External) isReference() {}

var schemeRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

// Site describes the origin whose absolute URLs are folded into root-relative paths.
type Site struct {
	Host   string
	origin *regexp.Regexp
}

// NewSite builds a Site from the root URL given to the copy. An empty URL
// gives a Site that recognises no origin.
func NewSite(rawURL string) (*Site, error) {
	if rawURL == "" {
		return &Site{}, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSiteURL, rawURL)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return &Site{
		Host:   host,
		origin: regexp.MustCompile(`(?i)^(https?:)?//(www\.)?` + regexp.QuoteMeta(host) + `(:\d+)?`),
	}, nil
}

// StripOrigin replaces the site's own origin with a root-relative slash.
func (s *Site) StripOrigin(raw string) string {
	if s == nil || s.origin == nil {
		return raw
	}
	loc := s.origin.FindStringIndex(raw)
	if loc == nil {
		return raw
	}
	rest := raw[loc[1]:]
	// "//site.com.evil" must not match "//site.com".
	if rest != "" && !strings.ContainsAny(rest[:1], "/?#") {
		return raw
	}
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return rest
}

// OwnsHost reports whether host (optionally with www.) is the site's.
func (s *Site) OwnsHost(host string) bool {
	if s == nil || s.Host == "" {
		return false
	}
	return strings.TrimPrefix(strings.ToLower(host), "www.") == s.Host
}

// ParseReference classifies a raw attribute value.
func ParseReference(raw string, site *Site) Reference {
	v := site.StripOrigin(strings.TrimSpace(raw))
	if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(v, "//") || schemeRegex.MatchString(v) {
		return External{URL: raw}
	}
	p, frag, _ := strings.Cut(v, "#")
	return Internal{Path: p, Fragment: frag}
}

// Relative turns a root-relative path into one relative to a document
// nested depth folders below the copy root.
func Relative(p string, depth int) string {
	if !strings.HasPrefix(p, "/") {
		return p
	}
	rel := strings.Repeat("../", depth) + strings.TrimPrefix(p, "/")
	if rel == "" {
		return "./"
	}
	return rel
}

// relativeTo returns target (a slash path from the copy root) as seen from
// directory base. A trailing slash on target is kept.
func relativeTo(base, target string) string {
	trailing := strings.HasSuffix(target, "/")
	bs := splitPath(base)
	ts := splitPath(target)
	i := 0
	for i < len(bs) && i < len(ts) && bs[i] == ts[i] {
		i++
	}
	parts := make([]string, 0, len(bs)-i+len(ts)-i)
	for range bs[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, ts[i:]...)
	if len(parts) == 0 {
		return "./"
	}
	rel := strings.Join(parts, "/")
	if trailing {
		rel += "/"
	}
	return rel
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" && s != "." {
			parts = append(parts, s)
		}
	}
	return parts
}
