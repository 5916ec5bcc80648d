package cli

import (
	"context"
	"errors"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/hangview/internal/config"
	"github.com/tOgg1/hangview/internal/logging"
	"github.com/tOgg1/hangview/internal/session"
	"github.com/tOgg1/hangview/internal/tui"
)

var errNoTTY = errors.New("run needs an interactive terminal; use 'hangview script' to replay a scenario non-interactively")

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		theme  string
		replay bool
		fresh  bool
	)
	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Open a study in the interactive viewer",
		Long: `Load the study described by a scenario file and open the interactive viewer.

The scenario's protocols and toolbar are added to those found in the
protocols directory. With --replay the scenario steps run before the
viewer opens.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !hasTTY() {
				return errNoTTY
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			// The viewer owns the terminal, so logs go to a file.
			if cfg.Logging.File == "" {
				cfg.Logging.File = filepath.Join(cfg.Global.DataDir, "logs", "hangview.log")
				initLogging(cfg)
			}
			sc, err := session.LoadScenario(args[0])
			if err != nil {
				return err
			}

			logger := logging.Component("run").With().Str("scenario", filepath.Base(args[0])).Logger()
			ctx, stop := signal.NotifyContext(logging.WithContext(cmd.Context(), logger), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sess, err := openScenarioSession(ctx, cfg, sc)
			if err != nil {
				return err
			}
			defer sess.Close()

			store := config.NewContextStore(filepath.Join(cfg.Global.ConfigDir, "context.yaml"))
			if replay {
				if err := sess.Replay(ctx, sc, nil); err != nil {
					return err
				}
			} else {
				if err := sess.LoadStudy(ctx, sc.StudyUID, sc.DisplaySets); err != nil {
					return err
				}
				if fresh {
					if err := store.Clear(); err != nil {
						return err
					}
				} else if _, err := sess.RestoreContext(ctx, store, sc.StudyUID); err != nil {
					logger.Warn().Err(err).Msg("failed to restore saved context")
				}
			}

			if theme == "" {
				theme = cfg.TUI.Theme
			}
			if err := runViewer(ctx, sess, tui.Config{Theme: theme, ShowPaneIDs: cfg.TUI.ShowPaneIDs}); err != nil {
				return err
			}
			return sess.SaveContext(store)
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "", "color theme (default, high-contrast)")
	cmd.Flags().BoolVar(&replay, "replay", false, "replay the scenario steps before opening the viewer")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "discard the protocol stage saved by the previous run")
	return cmd
}

// runViewer runs the session workers alongside the viewer and stops them
// when the viewer exits.
func runViewer(ctx context.Context, sess *session.Session, cfg tui.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, sess, cfg)
	})
	return g.Wait()
}

func openScenarioSession(ctx context.Context, cfg *config.Config, sc session.Scenario) (*session.Session, error) {
	var sessOpts []session.Option
	if len(sc.Protocols) > 0 {
		sessOpts = append(sessOpts, session.WithProtocols(sc.Protocols...))
	}
	if len(sc.Toolbar) > 0 {
		sessOpts = append(sessOpts, session.WithToolbar(sc.Toolbar...))
	}
	return session.Open(ctx, cfg, sessOpts...)
}
