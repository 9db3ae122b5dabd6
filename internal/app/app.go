package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/famigo/famigo/internal/account"
	"github.com/famigo/famigo/internal/api"
	"github.com/famigo/famigo/internal/config"
	"github.com/famigo/famigo/internal/credential"
	"github.com/famigo/famigo/internal/directory"
	"github.com/famigo/famigo/internal/forms"
	"github.com/famigo/famigo/internal/logger"
	"github.com/famigo/famigo/internal/session"
	"github.com/famigo/famigo/internal/state"
	"github.com/famigo/famigo/internal/ui"
)

// Options configure the famigo application.
type Options struct {
	ConfigPath   string
	LogLevel     string // overrides the configured level when set
	RefreshEvery int    // seconds; zero uses default
}

// Run boots the famigo TUI until the user quits or the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(ctx, opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if v := strings.TrimSpace(opts.LogLevel); v != "" {
		level = v
	}
	log, closeLog, err := logger.Open(cfg.LogFile, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "famigo: logging disabled: %v\n", err)
	}
	defer func() { _ = closeLog() }()
	log.Info().Str("api", cfg.APIBaseURL).Bool("dev", cfg.Dev).Msg("starting")

	creds := credential.NewFileStore(cfg.CredentialPath, log)
	client, err := api.NewClient(cfg.APIBaseURL, creds,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("init api client: %w", err)
	}

	sess := session.NewController(client, creds, session.WithLogger(log))
	store := &state.Store{}
	dir := directory.NewService(client,
		directory.WithLogger(log),
		directory.WithErrorHandler(store.RecordError),
	)
	defer dir.Wait()
	wire(sess, creds, dir, store)

	validator := forms.New()
	acct := account.NewService(client, sess, account.WithLogger(log), account.WithValidator(validator))
	ld := newLoader(client, store, dir, log)

	start(ctx, sess, ld)

	interval := defaultRefreshInterval
	if opts.RefreshEvery > 0 {
		interval = time.Duration(opts.RefreshEvery) * time.Second
	}
	ld.StartRefresher(ctx, interval)

	err = ui.Run(ui.Options{
		Context:   ctx,
		Loader:    ld,
		Session:   sess,
		Directory: dir,
		Account:   acct,
		Store:     store,
		Forms:     validator,
		Log:       log,
		ThemeName: cfg.Theme,
	})
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// wire keeps the store's favorite flags and the directory's cached lists in
// step with optimistic changes and sign-out.
func wire(sess *session.Controller, creds credential.Store, dir *directory.Service, store *state.Store) {
	dir.OnFavoriteChange(store.SetFavorite)
	sess.Subscribe(func(s session.Snapshot) {
		if s.Phase != session.Anonymous {
			return
		}
		if _, ok := creds.Get(); !ok {
			dir.ResetFavorites()
		}
	})
}

// start restores a stored session while the first directory data loads.
// Neither failure is fatal.
func start(ctx context.Context, sess *session.Controller, ld *loader) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if sess.Snapshot().Phase == session.Restoring {
			_ = sess.RefreshPrincipal(ctx)
		}
	}()
	ld.Bootstrap(ctx)
	<-done
}
