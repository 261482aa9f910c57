package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/vanderheijden86/bmo/pkg/config"
	"github.com/vanderheijden86/bmo/pkg/refresh"
	"github.com/vanderheijden86/bmo/pkg/ui"
	"github.com/vanderheijden86/bmo/pkg/watcher"
)

// envAutoClose quits the dashboard after the given number of milliseconds.
// Smoke tests use it.
const envAutoClose = "BMO_TUI_AUTOCLOSE_MS"

func (a *app) runTUI(ctx context.Context) error {
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return errNoTerminal
	}
	rc, closeCache, err := a.workerConfig(nil)
	if err != nil {
		return err
	}
	defer closeCache()

	worker, err := refresh.New(rc)
	if err != nil {
		return err
	}
	defer worker.Stop()

	// A file source is re-read as soon as its directory changes.
	var w *watcher.Watcher
	if a.cfg.Source.URL == "" && a.cfg.Source.Dir != "" {
		w, err = watcher.NewWatcher(a.cfg.Source.Dir,
			watcher.WithLogger(a.logger),
			watcher.WithOnError(func(err error) {
				a.logger.Warn("watch_error", zap.Error(err))
			}),
		)
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			a.logger.Warn("watch_unavailable", zap.String("dir", a.cfg.Source.Dir), zap.Error(err))
			w = nil
		} else {
			defer w.Stop()
		}
	}

	configPath := a.configPath
	if configPath == "" {
		configPath = config.ConfigPath()
	}
	m := ui.NewModel(ui.Options{
		Context:    ctx,
		Refresher:  worker,
		Watcher:    w,
		Config:     a.cfg,
		ConfigPath: configPath,
		Logger:     a.logger,
	})
	return runTUIProgram(ctx, m)
}

func runTUIProgram(ctx context.Context, m ui.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown when the context is cancelled (SIGINT/SIGTERM).
	go func() {
		select {
		case <-runDone:
			return
		case <-ctx.Done():
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	if v := os.Getenv(envAutoClose); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("%s: want a positive integer, got %q", envAutoClose, v)
		}
		go func() {
			timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
			defer timer.Stop()

			select {
			case <-runDone:
				return
			case <-timer.C:
			}

			p.Quit()

			select {
			case <-runDone:
				return
			case <-time.After(2 * time.Second):
			}

			p.Kill()
		}()
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}
