package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pe200012/cpupower-gui-qml/internal/config"
	"github.com/pe200012/cpupower-gui-qml/internal/profile"
	"github.com/pe200012/cpupower-gui-qml/internal/sysfs"
	"github.com/pe200012/cpupower-gui-qml/pkg/client"
	"github.com/pe200012/cpupower-gui-qml/pkg/queue"
	"github.com/pe200012/cpupower-gui-qml/pkg/types"
)

// helperAPI is the subset of the helper client the commands use.
type helperAPI interface {
	queue.Applier
	IsAuthorized(ctx context.Context) (bool, error)
	Quit(ctx context.Context) error
}

// app carries the dependencies shared by every command.
type app struct {
	out    io.Writer
	errOut io.Writer

	cfg      config.Client
	settings config.Settings
	reader   *sysfs.Reader
	helper   helperAPI
	profiles *profile.Store
}

func (a *app) init() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	a.cfg = cfg
	setupLogging(cfg)

	settings, err := config.LoadSettings(cfg.SystemProfileDir, cfg.UserConfigDir)
	if err != nil {
		return err
	}
	a.settings = settings

	if a.reader == nil {
		a.reader = sysfs.NewReader(cfg.SysfsRoot)
	}
	if a.helper == nil {
		c, err := client.New(client.Config{SocketPath: cfg.SocketPath, Timeout: cfg.CallTimeout})
		if err != nil {
			return err
		}
		a.helper = c
	}
	if a.profiles == nil {
		a.profiles = profile.NewStore(a.reader, cfg.SystemProfileDir, cfg.UserConfigDir)
	}
	return a.profiles.Load()
}

func setupLogging(cfg config.Client) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.DevMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
			NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "cpupowerctl").Str("version", version).Logger()
	}
}

// apply runs ops as one batch and prints progress as each completes.
func (a *app) apply(ops []types.Mutation) error {
	if len(ops) == 0 {
		fmt.Fprintln(a.out, styles.Muted.Render("nothing to apply"))
		return nil
	}

	q := queue.New(a.helper, queue.WithObserver(func(op types.Mutation, err error) {
		if err != nil {
			fmt.Fprintf(a.out, "%s %s\n", styles.Fail.Render("✗"), op.Describe())
			return
		}
		fmt.Fprintf(a.out, "%s %s\n", styles.OK.Render("✓"), op.Describe())
	}))
	defer q.Close()

	if err := q.BeginBatch(); err != nil {
		return err
	}
	for _, op := range ops {
		q.Enqueue(op)
	}
	outcome := <-q.EndBatch()

	if outcome.AllSucceeded {
		fmt.Fprintln(a.out, styles.OK.Render(fmt.Sprintf("applied %d change(s)", len(ops))))
		return nil
	}
	for _, msg := range outcome.Errors {
		fmt.Fprintln(a.errOut, styles.Fail.Render(msg))
	}
	return fmt.Errorf("%d of %d change(s) failed", len(outcome.Errors), len(ops))
}

// helperContext bounds a single non-batch helper call.
func (a *app) helperContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := a.cfg.CallTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func explainHelperError(err error) error {
	if errors.Is(err, client.ErrHelperUnavailable) {
		return fmt.Errorf("%w (is cpupower-helper running? status still works read-only)", err)
	}
	return err
}
