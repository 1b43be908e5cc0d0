package processor

import (
	"html"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"

	"sitecopy/logger"
	"sitecopy/wgetlog"
)

const redirectTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="Refresh" content="0; url='{{REDIRECT_URL}}'">
<title></title>
</head>
<body>
</body>
</html>
`

// RedirectPage renders a client-side redirect document pointing at href.
func RedirectPage(href string) []byte {
	return []byte(strings.ReplaceAll(redirectTemplate, "{{REDIRECT_URL}}", html.EscapeString(href)))
}

// redirectSource returns the index.html a redirected URL would occupy on
// disk, or "" when the URL belongs to another host.
func (p *Processor) redirectSource(from string) string {
	u, err := url.Parse(from)
	if err != nil {
		return ""
	}
	if u.Host != "" && p.site.Host != "" && !p.site.OwnsHost(u.Host) {
		return ""
	}
	rel := strings.TrimPrefix(p.norm.Canonicalize(u.EscapedPath()).Path, "/")
	if rel != IndexFile && !strings.HasSuffix(rel, "/"+IndexFile) {
		rel = strings.TrimSuffix(rel, "/") + "/" + IndexFile
	}
	return rel
}

// sourceOnDisk finds the file wget wrote for rel. wget stores UTF-8 names
// decoded, and NFC-composed on most filesystems, so those forms are tried
// before the literal percent-encoded one.
func (p *Processor) sourceOnDisk(rel string) string {
	var candidates []string
	if decoded, err := url.PathUnescape(rel); err == nil && decoded != rel {
		candidates = append(candidates, decoded, norm.NFC.String(decoded))
	}
	for _, c := range append(candidates, rel) {
		if p.isFile(c) {
			return c
		}
	}
	return ""
}

// MaterializeRedirects overwrites the pages wget saved under a redirected
// URL with a redirect document pointing at the normalized target. Sources
// with nothing on disk are reported and skipped.
func (p *Processor) MaterializeRedirects(redirects []wgetlog.Redirect) (Stats, error) {
	var st Stats
	for _, r := range redirects {
		st.Scanned++
		log := p.log.With(logger.String("from", r.From), logger.String("to", r.To))

		rel := p.redirectSource(r.From)
		if rel == "" {
			st.Warnings++
			log.Warn("redirect source is not on this site")
			continue
		}
		found := p.sourceOnDisk(rel)
		if found == "" {
			st.Warnings++
			log.Warn("redirect source not found on disk", logger.String("path", rel))
			continue
		}

		href := p.relinkReference(r.To, Depth(found))
		written, err := p.writeIfChanged(found, RedirectPage(href))
		if err != nil {
			return st, err
		}
		if written {
			st.Changed++
			log.Debug("wrote redirect page", logger.String("path", found), logger.String("href", href))
		}
	}
	p.log.Info("redirect finished", st.fields()...)
	return st, nil
}
