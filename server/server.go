// Package server serves a processed copy over HTTP the way a static host would.
package server

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"

	"sitecopy/logger"
)

const (
	indexFile       = "index.html"
	shutdownTimeout = 2 * time.Second
)

type Server struct {
	fs   afero.Fs
	addr string
	log  logger.Logger
}

func New(fsys afero.Fs, addr string, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{fs: fsys, addr: addr, log: log}
}

// resolve maps a request path to a file. Directories resolve to their
// index.html, and misses fall back to "<path>.html" so public query links
// such as blog/|page__2 or docs/|v__1.2 work.
func (s *Server) resolve(name string) (string, bool, error) {
	if name == "" {
		name = "."
	}
	info, err := s.fs.Stat(name)
	if err == nil {
		if info.IsDir() {
			return path.Join(name, indexFile), true, nil
		}
		return name, false, nil
	}
	if !strings.HasSuffix(name, ".html") {
		fallback := name + ".html"
		if ok, _ := afero.Exists(s.fs, fallback); ok {
			return fallback, false, nil
		}
	}
	return "", false, err
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqPath := r.URL.Path
	if !strings.HasPrefix(reqPath, "/") {
		reqPath = "/" + reqPath
	}
	name := strings.TrimPrefix(path.Clean(reqPath), "/")

	file, isDir, err := s.resolve(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if isDir && !strings.HasSuffix(reqPath, "/") {
		target := reqPath + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}

	f, err := s.fs.Open(file)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	s.log.Debug("serving", logger.String("path", reqPath), logger.String("file", file))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("serving copy", logger.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		s.log.Warn("forced stop", logger.Error(err))
		return nil
	}
	s.log.Info("stopped")
	return nil
}
