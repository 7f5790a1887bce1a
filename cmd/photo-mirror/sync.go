package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/handiism/photo-mirror/internal/engine"
	"github.com/handiism/photo-mirror/internal/mirror"
	"github.com/handiism/photo-mirror/internal/model"
	"github.com/handiism/photo-mirror/internal/transfer"
)

type syncFlags struct {
	account   string
	albums    string
	allAlbums bool
	count     string
	root      string
	dryRun    bool
}

func newSyncCommand(global *globalFlags) *cobra.Command {
	flags := &syncFlags{}
	cmd := &cobra.Command{
		Use:   "sync [account]",
		Short: "Mirror the photos of one or more albums",
		Long: `Mirror the photos of one or more albums of an account.

Photos are named after their like count, with the upload date appended
when two photos share a count. Photos already in the destination are not
uploaded again. Ctrl+C stops new uploads; photos already started are
verified and the manifest is still written.`,
		Example: `  photo-mirror sync --account durov --album profile --count 10
  photo-mirror sync durov --album profile,wall --count all
  photo-mirror sync durov --all-albums --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.account == "" && len(args) > 0 {
				flags.account = args[0]
			}
			return runSync(global, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.account, "account", "a", "", "Account id or screen name")
	cmd.Flags().StringVar(&flags.albums, "album", "profile", "Album ids (comma-separated); system albums are profile, wall and saved")
	cmd.Flags().BoolVar(&flags.allAlbums, "all-albums", false, "Sync every album of the account")
	cmd.Flags().StringVarP(&flags.count, "count", "n", "", "How many photos to mirror per album, or \"all\" (default from config)")
	cmd.Flags().StringVar(&flags.root, "root", "", "Destination root folder (overrides config)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Fetch and name photos without uploading")
	return cmd
}

func runSync(global *globalFlags, flags *syncFlags) error {
	settings, log, err := global.load()
	if err != nil {
		return err
	}

	count := flags.count
	if count == "" {
		count = settings.Sync.DefaultCount
	}
	c, err := transfer.ParseCap(count)
	if err != nil {
		return err
	}

	// Handle interrupts
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "\nInterrupted, finishing in-flight photos...")
			cancel()
		case <-ctx.Done():
		}
	}()

	manager, err := mirror.NewManager(settings, log, progressLogger(log))
	if err != nil {
		return err
	}
	defer manager.Close()

	err = manager.Initialize(ctx, mirror.Request{
		Account:     flags.account,
		Albums:      flags.albums,
		AllAlbums:   flags.allAlbums,
		Cap:         c,
		Destination: flags.root,
		DryRun:      flags.dryRun,
	})
	if err != nil {
		return err
	}

	reports, err := manager.Start(ctx)
	for _, r := range reports {
		printReport(r)
	}
	if err != nil {
		return err
	}

	for _, r := range reports {
		if r.Cancelled {
			return context.Canceled
		}
	}
	if failed := countFailed(reports); failed > 0 {
		return fmt.Errorf("%d photo(s) were not mirrored", failed)
	}
	return nil
}

// progressLogger forwards engine progress events to log.
func progressLogger(log logrus.FieldLogger) func(engine.ProgressEvent) {
	return func(event engine.ProgressEvent) {
		entry := log.WithField("stage", string(event.Stage))
		if event.FileName != "" {
			entry = entry.WithField("file", event.FileName)
		}

		switch event.Level {
		case engine.LevelVerbose:
			entry.Debug(event.Message)
		case engine.LevelWarning:
			entry.Warn(event.Message)
		case engine.LevelError:
			entry.Error(event.Message)
		default:
			entry.Info(event.Message)
		}
	}
}

// countFailed counts attempted photos that did not verify as present.
func countFailed(reports []*engine.Report) int {
	n := 0
	for _, r := range reports {
		n += r.Tally.Attempted - r.Tally.Verified
	}
	return n
}

func printReport(r *engine.Report) {
	w := stdout
	t := r.Tally

	fmt.Fprintf(w, "\n%s (%s)\n", r.Folder, r.Duration().Round(time.Millisecond))
	if r.Job.DryRun {
		for _, p := range r.Plan {
			fmt.Fprintf(w, "  %-24s %s\n", p.FileName, p.SizeType)
		}
		fmt.Fprintf(w, "  dry run: %d of %d photos would be mirrored\n", len(r.Plan), t.Fetched-t.Skipped)
		return
	}

	for _, out := range r.Verifies {
		switch {
		case out.Status == model.VerifyPresent:
		case out.Err != nil:
			fmt.Fprintf(w, "  %-24s %s: %v\n", out.FileName, out.Status, out.Err)
		default:
			fmt.Fprintf(w, "  %-24s %s\n", out.FileName, out.Status)
		}
	}
	fmt.Fprintf(w, "  fetched %d, skipped %d, not attempted %d\n", t.Fetched, t.Skipped, t.NotAttempted)
	fmt.Fprintf(w, "  transferred %d, already present %d, failed %d\n", t.Transferred, t.AlreadyPresent, t.Failed)
	fmt.Fprintf(w, "  verified %d of %d\n", t.Verified, t.Attempted)
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  warning: %v\n", warn)
	}
	if r.Fatal != nil {
		fmt.Fprintf(w, "  stopped: %v\n", r.Fatal)
	}
}
