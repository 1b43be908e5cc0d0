package uptime

import (
	"fmt"
	"html"
	"strings"
	"time"
)

type Digest struct {
	Title string
	Body  string
}

// Empty reports whether there is nothing worth emailing.
func (d Digest) Empty() bool { return d.Body == "" }

// HTML wraps the plain text body in a <pre> block.
func (d Digest) HTML() string {
	return "<html>\n<head></head>\n<body>\n<pre>" + html.EscapeString(d.Body) + "</pre>\n</body>\n</html>\n"
}

// NewDigest composes the email for the monitors that are down.
func NewDigest(monitors []Monitor) Digest {
	var b strings.Builder
	for _, m := range monitors {
		var duration time.Duration
		reason := ""
		if len(m.Logs) > 0 {
			duration = time.Duration(m.Logs[0].Duration) * time.Second
			reason = m.Logs[0].Reason.Detail
		}
		fmt.Fprintf(&b, "%s, downtime: %s (%s)\n\n", m.URL, FormatDuration(duration), reason)
	}
	return Digest{
		Title: fmt.Sprintf("%d site(s) down", len(monitors)),
		Body:  b.String(),
	}
}

// FormatDuration renders d as H:MM:SS, prefixed with the number of days
// when longer than one.
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	days := total / 86400
	rest := total % 86400
	hms := fmt.Sprintf("%d:%02d:%02d", rest/3600, rest%3600/60, rest%60)
	switch {
	case days == 1:
		return "1 day, " + hms
	case days > 1:
		return fmt.Sprintf("%d days, %s", days, hms)
	}
	return hms
}
