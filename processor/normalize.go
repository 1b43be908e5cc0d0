package processor

import (
	"net/url"
	"path"
	"strings"
)

const (
	// QueryDelimiter separates encoded query parameters in a filename.
	QueryDelimiter = "|"
	// QueryAssign replaces "=" inside encoded query parameters.
	QueryAssign = "__"
	IndexFile   = "index.html"
)

// DefaultTrackingParams are query parameters dropped before encoding.
// Any parameter starting with "utm_" is dropped as well.
var DefaultTrackingParams = []string{
	"fbclid", "gclid", "dclid", "msclkid", "mc_cid", "mc_eid", "_ga", "_gl",
}

// Form tells whether a canonical path carries an encoded query string.
type Form int

const (
	FormClean Form = iota
	FormQueryEncoded
)

// CanonicalPath is the on-disk location a reference resolves to.
type CanonicalPath struct {
	Path string
	Form Form
	// Segments holds the encoded query parameters ("page__2") for FormQueryEncoded.
	Segments []string
}

func (c CanonicalPath) String() string { return c.Path }

// Public returns the form used inside hyperlinks: directory pages lose their
// index.html and query pages lose their .html extension. The encoded name of
// a query page has "%" escaped so a browser requests the file as named on disk.
func (c CanonicalPath) Public() string {
	if c.Form == FormQueryEncoded {
		dir, name := path.Split(strings.TrimSuffix(c.Path, ".html"))
		return dir + strings.ReplaceAll(name, "%", "%25")
	}
	if c.Path == IndexFile || strings.HasSuffix(c.Path, "/"+IndexFile) {
		return strings.TrimSuffix(c.Path, IndexFile)
	}
	return c.Path
}

// Normalizer maps raw paths and URLs onto canonical paths.
type Normalizer struct {
	tracking map[string]struct{}
}

// NewNormalizer builds a normalizer that drops the given tracking parameters.
// A nil slice selects DefaultTrackingParams.
func NewNormalizer(trackingParams []string) *Normalizer {
	if trackingParams == nil {
		trackingParams = DefaultTrackingParams
	}
	n := &Normalizer{tracking: make(map[string]struct{}, len(trackingParams))}
	for _, p := range trackingParams {
		n.tracking[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	return n
}

var defaultNormalizer = NewNormalizer(nil)

// Normalize is Normalizer.Normalize with the default tracking parameters.
func Normalize(raw string, public bool) string {
	return defaultNormalizer.Normalize(raw, public)
}

// Normalize returns the canonical path of raw, in public form when public is set.
func (n *Normalizer) Normalize(raw string, public bool) string {
	c := n.Canonicalize(raw)
	if public {
		return c.Public()
	}
	return c.Path
}

// Canonicalize resolves raw (a path, optionally with query and fragment) to
// its canonical on-disk path. It is idempotent on its own output and on the
// public form of its output.
func (n *Normalizer) Canonicalize(raw string) CanonicalPath {
	p, _, _ := strings.Cut(raw, "#")
	p, query, hasQuery := splitQuery(p)
	if hasQuery {
		query = n.dropTracking(query)
	}
	if query == "" {
		return canonicalClean(p)
	}
	if !isPagePath(p) {
		return canonicalClean(p)
	}

	params := strings.Split(query, "&")
	segments := make([]string, 0, len(params))
	for _, param := range params {
		param = strings.ReplaceAll(param, ".html", "")
		param = strings.ReplaceAll(param, "/", "%2F")
		param = strings.ReplaceAll(param, "?", "%3F")
		segments = append(segments, strings.ReplaceAll(param, "=", QueryAssign))
	}
	return CanonicalPath{
		Path:     pageDir(p) + QueryDelimiter + strings.Join(segments, QueryDelimiter) + ".html",
		Form:     FormQueryEncoded,
		Segments: segments,
	}
}

// splitQuery cuts p at the first "?" or, failing that, at a percent-encoded
// one. An encoded query name is never cut again: its values may hold "%3F".
func splitQuery(p string) (string, string, bool) {
	if before, after, ok := strings.Cut(p, "?"); ok {
		return before, after, true
	}
	if strings.HasPrefix(path.Base(p), QueryDelimiter) {
		return p, "", false
	}
	if i := strings.Index(strings.ToLower(p), "%3f"); i >= 0 {
		query := p[i+3:]
		if decoded, err := url.PathUnescape(query); err == nil {
			query = decoded
		}
		return p[:i], query, true
	}
	return p, "", false
}

func (n *Normalizer) dropTracking(query string) string {
	var kept []string
	for _, param := range strings.Split(query, "&") {
		if param == "" {
			continue
		}
		key, _, _ := strings.Cut(param, "=")
		key = strings.ToLower(key)
		if _, ok := n.tracking[key]; ok || strings.HasPrefix(key, "utm_") {
			continue
		}
		kept = append(kept, param)
	}
	return strings.Join(kept, "&")
}

func canonicalClean(p string) CanonicalPath {
	name := path.Base(p)
	switch {
	case p == "" || strings.HasSuffix(p, "/"):
		return CanonicalPath{Path: p + IndexFile}
	case strings.HasPrefix(name, QueryDelimiter):
		// Already query-encoded. Without its extension it is the public form.
		if !strings.HasSuffix(p, ".html") {
			name = strings.ReplaceAll(name, "%25", "%")
			p = strings.TrimSuffix(p, path.Base(p)) + name + ".html"
		}
		encoded := strings.TrimSuffix(strings.TrimPrefix(name, QueryDelimiter), ".html")
		return CanonicalPath{Path: p, Form: FormQueryEncoded, Segments: strings.Split(encoded, QueryDelimiter)}
	case name == IndexFile || strings.Contains(p, QueryDelimiter):
		return CanonicalPath{Path: p}
	case strings.HasSuffix(p, ".html"):
		return CanonicalPath{Path: strings.TrimSuffix(p, ".html") + "/" + IndexFile}
	}
	return CanonicalPath{Path: p}
}

// isPagePath reports whether p names a page rather than an asset.
func isPagePath(p string) bool {
	if p == "" || strings.HasSuffix(p, "/") {
		return true
	}
	switch pageExt(p) {
	case "", ".html", ".htm":
		return true
	}
	return false
}

// pageExt is the lower-cased extension of the last element of p.
func pageExt(p string) string {
	return strings.ToLower(path.Ext(path.Base(p)))
}

// pageDir returns the directory, with trailing slash, holding the query
// variants of page p.
func pageDir(p string) string {
	switch {
	case p == "" || strings.HasSuffix(p, "/"):
		return p
	case strings.EqualFold(path.Base(p), IndexFile):
		return strings.TrimSuffix(p, path.Base(p))
	}
	if ext := pageExt(p); ext == ".html" || ext == ".htm" {
		return p[:len(p)-len(ext)] + "/"
	}
	return p + "/"
}
