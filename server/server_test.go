package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitecopy/processor"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"index.html":         "home",
		"about/index.html":   "about",
		"blog/|page__2.html": "page two",
		"docs/|v__1.2.html":  "version 1.2",
		"css/site.css":       "body{}",
		"empty/.keep":        "",
	}
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return New(fs, ":0", nil)
}

func TestServeHTTP(t *testing.T) {
	s := newTestServer(t)

	testCases := []struct {
		name     string
		method   string
		path     string
		status   int
		body     string
		location string
	}{
		{"root index", http.MethodGet, "/", http.StatusOK, "home", ""},
		{"directory index", http.MethodGet, "/about/", http.StatusOK, "about", ""},
		{"directory without slash", http.MethodGet, "/about", http.StatusMovedPermanently, "", "/about/"},
		{"public query link", http.MethodGet, "/blog/%7Cpage__2", http.StatusOK, "page two", ""},
		{"public query link with dot", http.MethodGet, "/docs/%7Cv__1.2", http.StatusOK, "version 1.2", ""},
		{"encoded file direct", http.MethodGet, "/blog/%7Cpage__2.html", http.StatusOK, "page two", ""},
		{"asset", http.MethodGet, "/css/site.css", http.StatusOK, "body{}", ""},
		{"missing", http.MethodGet, "/nope", http.StatusNotFound, "", ""},
		{"directory without index", http.MethodGet, "/empty/", http.StatusNotFound, "", ""},
		{"traversal stays inside", http.MethodGet, "/../index.html", http.StatusOK, "home", ""},
		{"post rejected", http.MethodPost, "/", http.StatusMethodNotAllowed, "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
			if tc.location != "" {
				assert.Equal(t, tc.location, rec.Header().Get("Location"))
			}
		})
	}
}

func TestServeHTTP_ContentType(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/css/site.css", nil))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
}

func TestServeHTTP_RelinkedQueryLinks(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"index.html": `<a href="search.html%3Fq=a%2520b.html">q</a>` +
			`<a href="search.html%3Fnext=%252Fa%253Fb%253D1.html">n</a>` +
			`<a href="docs/index.html%3Fv=1.2.html">v</a>`,
		"search.html?q=a%20b.html":           "spaced",
		"search.html?next=%2Fa%3Fb%3D1.html": "next",
		"docs/index.html?v=1.2.html":         "docs",
	}
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	p, err := processor.New(fs, processor.Config{SiteURL: "https://site.ac.uk/"}, nil)
	require.NoError(t, err)

	// A second pass must leave the canonical files and links alone.
	for pass := 0; pass < 2; pass++ {
		_, err = p.Dedupe()
		require.NoError(t, err)
		st, err := p.Relink()
		require.NoError(t, err)
		if pass == 1 {
			assert.Zero(t, st.Changed)
		}
	}

	index, err := afero.ReadFile(fs, "index.html")
	require.NoError(t, err)
	assert.Equal(t, `<a href="search/|q__a%2520b">q</a>`+
		`<a href="search/|next__%252Fa%253Fb%253D1">n</a>`+
		`<a href="docs/|v__1.2">v</a>`, string(index))

	s := New(fs, ":0", nil)
	links := []struct {
		href string
		body string
	}{
		{"search/|q__a%2520b", "spaced"},
		{"search/|next__%252Fa%253Fb%253D1", "next"},
		{"docs/|v__1.2", "docs"},
	}
	for _, l := range links {
		rec := httptest.NewRecorder()
		target := "/" + strings.ReplaceAll(l.href, "|", "%7C")
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusOK, rec.Code, l.href)
		assert.Equal(t, l.body, rec.Body.String(), l.href)
	}
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := New(afero.NewMemMapFs(), addr, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
