package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/stageload/internal/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// WatchCmd returns the watch command. It runs the watch folder and the
// retention sweeper until interrupted.
func WatchCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process files dropped into the watch folder",
		Long: `Watch the upload folder and load every ready file. Loaded files move to
archive, failures to error with a sidecar error report. Runs until
interrupted; in-flight files finish before exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			cfg := app.Config
			if root != "" {
				cfg.Watch.Root = root
			}
			if cfg.Watch.Root == "" {
				return errors.New("watch folder root is not set (WATCH_ROOT or --root)")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w, err := app.NewWatcher(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", cyan.Sprint(cfg.Watch.Root))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return w.Run(gctx) })
			if cfg.Retention.Enabled {
				g.Go(func() error {
					w.RunRetention(gctx, RetentionPolicy(cfg.Retention))
					return nil
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Watch folder root (overrides WATCH_ROOT)")

	return cmd
}

// RetryCmd returns the retry command. It only moves files and needs no
// database connection.
func RetryCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "retry <file>",
		Short: "Move a failed file from the error folder back to upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			wc := WatchConfig(cfg.Watch)
			if root != "" {
				wc.Root = root
			}
			if wc.Root == "" {
				return errors.New("watch folder root is not set (WATCH_ROOT or --root)")
			}

			queued, err := watch.New(wc, nil, nil, nil).Retry(args[0])
			if err != nil {
				printError(cmd.ErrOrStderr(), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s as %s\n", green.Sprint("Queued"), args[0], queued)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Watch folder root (overrides WATCH_ROOT)")

	return cmd
}
