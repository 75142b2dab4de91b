package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tonimelisma/clouddrive-go/internal/api"
	"github.com/tonimelisma/clouddrive-go/internal/config"
	"github.com/tonimelisma/clouddrive-go/internal/editor"
	"github.com/tonimelisma/clouddrive-go/internal/history"
	"github.com/tonimelisma/clouddrive-go/internal/metrics"
	"github.com/tonimelisma/clouddrive-go/internal/registry"
	"github.com/tonimelisma/clouddrive-go/internal/session"
	"github.com/tonimelisma/clouddrive-go/internal/transfer"
)

// errNotLoggedIn is shown when a command needs a session and none exists.
var errNotLoggedIn = errors.New("not logged in, run 'clouddrive-go login' first")

// keepAlive is the TCP keep-alive period for service connections.
const keepAlive = 30 * time.Second

// app is the wired set of components one command invocation works with.
type app struct {
	cc *CLIContext

	session   *session.Store
	client    *api.Client
	registry  *registry.Registry
	gate      *semaphore.Weighted
	transfers *transfer.Orchestrator
	editor    *editor.Editor
	history   *history.Store // nil when history is disabled
	metrics   *metrics.Collectors
	progress  *progressView
}

// newApp wires every component from the resolved configuration and
// restores the persisted session. Close must be called when done.
func newApp(ctx context.Context, cc *CLIContext) (*app, error) {
	cfg := cc.Cfg
	logger := cc.Logger

	a := &app{
		cc:       cc,
		metrics:  metrics.New(),
		gate:     transfer.NewGate(),
		progress: newProgressView(cc.Stderr, cc.Flags.Quiet),
	}

	a.session = session.NewStore(cfg.CredentialFile, cfg.ServerURL, logger)
	a.session.Restore()

	a.client = api.NewClient(cfg.ServerURL, newHTTPClient(cfg), a.session, logger, cfg.UserAgent)
	a.client.OnRequest = a.metrics.RequestDone

	a.registry = registry.New(a.client, logger)
	a.registry.OnRefresh = a.metrics.RefreshDone
	a.registry.OnError = func(err error) {
		statusf(cc.Stderr, cc.Flags.Quiet, "Warning: could not refresh file list: %v\n", err)
	}

	var recorder transfer.Recorder

	if cfg.HistoryEnabled {
		store, err := history.Open(ctx, cfg.HistoryDBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("opening transfer history: %w", err)
		}

		a.history = store
		recorder = store
	}

	a.transfers = transfer.New(a.client, a.registry, a.gate, logger, transfer.Options{
		SyncDelay:     syncDelay(cfg.SyncDownloadDelay),
		MaxUploadSize: cfg.MaxUploadSize,
		Observer:      a.progress.Observe,
		Recorder:      recorder,
		Meter:         a.metrics,
	})

	a.editor = editor.New(a.client, a.registry, a.gate, logger)

	return a, nil
}

// syncDelay maps the configured delay onto transfer.Options, where zero
// means "default" and a negative value disables the delay.
func syncDelay(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}

	return d
}

// newHTTPClient returns an HTTP client with the configured connect and
// response-header timeouts. There is no overall timeout: large transfers
// may legitimately take long.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: keepAlive,
	}).DialContext
	tr.TLSHandshakeTimeout = cfg.ConnectTimeout
	tr.ResponseHeaderTimeout = cfg.DataTimeout

	return &http.Client{Transport: tr}
}

// requireSession returns the active session or a login hint.
func (a *app) requireSession() (*session.Session, error) {
	sess, err := a.session.Require()
	if errors.Is(err, session.ErrNotLoggedIn) {
		return nil, errNotLoggedIn
	}

	return sess, err
}

// Close releases the history database and writes the metrics textfile when
// --metrics-file is set.
func (a *app) Close() error {
	var errs []error

	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing transfer history: %w", err))
		}
	}

	if path := a.cc.Flags.MetricsFile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		} else {
			a.cc.Logger.Debug("metrics written", slog.String("path", path))
		}
	}

	return errors.Join(errs...)
}

// withApp builds the app for the command, runs fn and closes the app. A
// close failure is reported only when fn succeeded.
func withApp(ctx context.Context, fn func(a *app) error) (err error) {
	cc := mustCLIContext(ctx)

	a, err := newApp(ctx, cc)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			if err == nil {
				err = closeErr
			} else {
				cc.Logger.Warn("cleanup failed", slog.String("error", closeErr.Error()))
			}
		}
	}()

	return fn(a)
}

// authHint adds a login hint to authentication failures.
func authHint(err error) error {
	if api.IsAuth(err) {
		return fmt.Errorf("%w (session may have expired, run 'clouddrive-go login')", err)
	}

	return err
}
