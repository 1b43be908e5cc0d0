package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitecopy/uptime"
)

type fakeMailer struct {
	sent []uptime.Message
}

func (f *fakeMailer) Send(_ context.Context, msg uptime.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

func TestRun(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"stat":"ok","monitors":[{"url":"https://a.ac.uk/",
			"logs":[{"duration":61,"reason":{"detail":"Timeout"}}]}]}`)
	}))
	defer api.Close()

	file := filepath.Join(t.TempDir(), "uptime.yaml")
	require.NoError(t, os.WriteFile(file, []byte("api_url: "+api.URL+"\n"+
		"email:\n  from: noreply@site.ac.uk\n  to: [ops@site.ac.uk]\n"), 0o644))
	t.Setenv("UPTIME_API_KEY", "secret")

	mailer := &fakeMailer{}
	cmd := newRootCmd(mailer)
	cmd.SetArgs([]string{"--config", file})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "1 site(s) down", mailer.sent[0].Subject)
	assert.Equal(t, "https://a.ac.uk/, downtime: 0:01:01 (Timeout)\n\n", mailer.sent[0].Text)
}
