// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-transcript/internal/config"
	"github.com/jeranaias/rigrun-transcript/internal/logging"
	"github.com/jeranaias/rigrun-transcript/internal/markdown"
	"github.com/jeranaias/rigrun-transcript/internal/session"
	"github.com/jeranaias/rigrun-transcript/internal/storage"
	"github.com/jeranaias/rigrun-transcript/internal/telemetry"
	"github.com/jeranaias/rigrun-transcript/internal/transcript"
	"github.com/jeranaias/rigrun-transcript/internal/ui/chat"
	"github.com/jeranaias/rigrun-transcript/internal/ui/styles"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// APP
// =============================================================================

// App holds the state shared by every command: the loaded config, the
// logger and a lazily opened database.
type App struct {
	Out    io.Writer
	ErrOut io.Writer

	// Flags
	configPath string
	dbPath     string
	logLevel   string
	jsonOut    bool

	cfg     *config.Config
	cfgFile string
	logger  *slog.Logger
	metrics *telemetry.Collector
	db      *storage.DB
}

// NewApp creates an App writing to out and errOut.
func NewApp(out, errOut io.Writer) *App {
	return &App{
		Out:    out,
		ErrOut: errOut,
		logger: logging.OrDiscard(nil),
	}
}

// setup loads the config and builds the logger. It runs before every
// command.
func (a *App) setup() error {
	// Config warnings go to stderr until the configured logger takes over.
	bootLevel := a.logLevel
	if bootLevel == "" {
		bootLevel = "warn"
	}
	_ = logging.Init(bootLevel, logging.SinkStderr)

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Storage.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	if err := logging.Init(cfg.Log.Level, cfg.Log.Sink); err != nil {
		return err
	}
	a.logger = logging.L()
	return nil
}

// loadConfig reads --config when given, otherwise the default config file.
// A missing file means defaults plus environment overrides.
func (a *App) loadConfig() (*config.Config, error) {
	if a.configPath == "" {
		path, err := config.ConfigPath()
		if err != nil {
			return nil, err
		}
		a.cfgFile = path
		return config.Load()
	}

	a.cfgFile = a.configPath
	if _, err := os.Stat(a.cfgFile); err == nil {
		return config.LoadFromPath(a.cfgFile)
	}
	cfg := config.Default()
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Close releases the database and log file.
func (a *App) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	errs = append(errs, logging.Close())
	return errors.Join(errs...)
}

// Config returns the loaded config.
func (a *App) Config() *config.Config {
	return a.cfg
}

// openDB opens the chat database on first use.
func (a *App) openDB() (*storage.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	opts := []storage.Option{storage.WithLogger(a.logger)}
	if a.metrics != nil {
		opts = append(opts, storage.WithMetrics(a.metrics))
	}
	db, err := storage.Open(a.cfg.DatabasePath(), opts...)
	if err != nil {
		return nil, NewCommandError("storage", "open", err)
	}
	a.db = db
	return db, nil
}

// newSession creates a store and session configured from the config.
// persister may be nil.
func (a *App) newSession(persister session.Persister, throttle bool) *session.Session {
	opts := []transcript.Option{
		transcript.WithLogger(a.logger),
		transcript.WithMinBlockSlots(a.cfg.Store.MinBlockSlots),
	}
	if throttle {
		opts = append(opts, transcript.WithThrottle(a.cfg.Throttle()))
	} else {
		opts = append(opts, transcript.WithThrottle(0))
	}
	if a.metrics != nil {
		opts = append(opts, transcript.WithMetrics(a.metrics))
	}

	sess := session.New(transcript.New(opts...), persister, session.Config{
		Model:            a.cfg.Session.Model,
		AutoSaveEnabled:  a.cfg.Session.AutoSave && persister != nil,
		AutoSaveInterval: a.cfg.AutoSaveInterval(),
	}, a.logger)
	sess.SetAutoSaveErrorCallback(func(err error) {
		a.logger.Warn("AUTOSAVE_FAILED", "chat", sess.Store().ChatID(), "error", err)
	})
	return sess
}

// newView builds a transcript view for w. Styled markdown is used only
// when w is a color terminal and rendering is enabled.
func (a *App) newView(w io.Writer) *chat.View {
	v := &chat.View{
		Theme: styles.PlainTheme(),
		Width: TerminalWidth(w),
	}
	if !ColorsEnabled(w) {
		return v
	}

	// lipgloss detects on stdout; FORCE_COLOR and other writers need the
	// profile set explicitly.
	lipgloss.SetColorProfile(ColorProfile(w))
	v.Theme = styles.NewTheme()
	v.Markdown = a.renderer(v.Width)
	return v
}

// renderer returns the glamour renderer, or nil when markdown rendering is
// disabled or fails to initialize.
func (a *App) renderer(width int) *markdown.Renderer {
	if !a.cfg.Render.Markdown {
		return nil
	}
	wrap := a.cfg.Render.WordWrap
	if wrap <= 0 || wrap > width {
		wrap = width
	}
	r, err := markdown.NewRenderer(markdown.RenderOptions{
		Style:    a.cfg.Render.Style,
		WordWrap: wrap,
	})
	if err != nil {
		a.logger.Warn("RENDERER_INIT_FAILED", "error", err)
		return nil
	}
	return r
}

// writeJSON writes data in the JSON envelope.
func (a *App) writeJSON(command string, data any) error {
	return NewJSONResponse(command, data).Write(a.Out)
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "rigrun-transcript",
		Short: "Streaming chat transcripts with branch navigation",
		Long: `rigrun-transcript records streamed assistant replies into a branching
chat history, renders them in the terminal and shares public chats over
a read-only HTTP API.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(app.Out)
	root.SetErr(app.ErrOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&app.configPath, "config", "c", "", "config file path (default ~/.rigrun-transcript/config.toml)")
	flags.StringVar(&app.dbPath, "db", "", "chat database path")
	flags.StringVar(&app.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&app.jsonOut, "json", false, "write machine-readable JSON")

	root.AddCommand(
		newReplayCommand(app),
		newShowCommand(app),
		newSiblingsCommand(app),
		newExportCommand(app),
		newViewCommand(app),
		newServeCommand(app),
		newChatsCommand(app),
		newConfigCommand(app),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(os.Stdout, os.Stderr)
	defer app.Close()

	err := NewRootCommand(app).ExecuteContext(ctx)
	if err != nil {
		DisplayError(app.ErrOut, err, app.jsonOut)
	}
	return ExitCode(err)
}
