package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"

	"sitecopy/config"
	"sitecopy/downloader"
	"sitecopy/logger"
	"sitecopy/processor"
	"sitecopy/server"
	"sitecopy/wgetlog"
)

var (
	ErrMissingCopy = errors.New("copy folder not found, run the copy action first")
	ErrDryRunCopy  = errors.New("the copy action cannot run with --dry-run")
)

// App holds what every action needs: settings, the working directory
// filesystem and where reports go.
type App struct {
	cfg    *config.Config
	fs     afero.Fs
	runner downloader.Runner
	log    logger.Logger
	out    io.Writer
	now    func() time.Time

	summary []stageSummary
}

type stageSummary struct {
	name  string
	stats processor.Stats
}

// copyRoot returns the copied site as a filesystem rooted at copy_path.
// Dry runs get a read-only view.
func (a *App) copyRoot() (afero.Fs, error) {
	ok, err := afero.DirExists(a.fs, a.cfg.CopyPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrMissingCopy, a.cfg.CopyPath)
	}
	root := afero.NewBasePathFs(a.fs, a.cfg.CopyPath)
	if a.cfg.DryRun {
		root = afero.NewReadOnlyFs(root)
	}
	return root, nil
}

func (a *App) processor() (*processor.Processor, error) {
	root, err := a.copyRoot()
	if err != nil {
		return nil, err
	}
	return processor.New(root, processor.Config{
		SiteURL:        a.cfg.URL,
		DryRun:         a.cfg.DryRun,
		TrackingParams: a.cfg.TrackingParams,
	}, a.log)
}

func (a *App) parseLog() (*wgetlog.Result, error) {
	return wgetlog.ParseFile(a.fs, a.cfg.LogFile)
}

// stage runs one processor pass and records its stats for the summary.
func (a *App) stage(name string, pass func(p *processor.Processor) (processor.Stats, error)) error {
	p, err := a.processor()
	if err != nil {
		return err
	}
	st, err := pass(p)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	a.summary = append(a.summary, stageSummary{name: name, stats: st})
	return nil
}

func (a *App) runCopy(ctx context.Context) error {
	if a.cfg.DryRun {
		return ErrDryRunCopy
	}
	return downloader.New(a.fs, a.runner, a.log).Mirror(ctx, a.cfg.Downloader())
}

func (a *App) runReport(context.Context) error {
	res, err := a.parseLog()
	if err != nil {
		return err
	}
	res.WriteErrors(a.out)
	res.WriteRedirects(a.out)
	return nil
}

func (a *App) runRedirect(context.Context) error {
	res, err := a.parseLog()
	if err != nil {
		return err
	}
	res.WriteRedirects(a.out)
	return a.stage("redirect", func(p *processor.Processor) (processor.Stats, error) {
		return p.MaterializeRedirects(res.Redirects.Pairs())
	})
}

func (a *App) runRelink(context.Context) error {
	return a.stage("relink", (*processor.Processor).Relink)
}

func (a *App) runDedupe(context.Context) error {
	return a.stage("dedupe", (*processor.Processor).Dedupe)
}

func (a *App) runRename(context.Context) error {
	return a.stage("rename", (*processor.Processor).RenameQueryFiles)
}

func (a *App) runTag(context.Context) error {
	when := a.now()
	return a.stage("tag", func(p *processor.Processor) (processor.Stats, error) {
		return p.Tag(when)
	})
}

func (a *App) runCopyAndFix(ctx context.Context) error {
	steps := []func(context.Context) error{
		a.runCopy,
		a.runDedupe,
		a.runRedirect,
		a.runRelink,
		a.runRename,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	renderSummary(a.out, a.summary)
	return nil
}

func (a *App) runServe(ctx context.Context) error {
	root, err := a.copyRoot()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "serving %s on %s\n", a.cfg.CopyPath, a.cfg.Serve.Addr)
	return server.New(root, a.cfg.Serve.Addr, a.log).ListenAndServe(ctx)
}
