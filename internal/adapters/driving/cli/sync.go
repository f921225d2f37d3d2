package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/services"
)

var (
	syncPrecise  bool
	syncYes      bool
	syncInterval time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronise documents into the assistant backend",
	Long: `Fetches every configured documentation source, reconciles it against
the assistant's file index, and uploads, skips or deletes files as
needed. Without --yes, each non-empty plan is shown for confirmation.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncPrecise, "precise", false, "trust upstream timestamps exactly during reconciliation")
	syncCmd.Flags().BoolVarP(&syncYes, "yes", "y", false, "apply changes without prompting")
	syncCmd.Flags().DurationVar(&syncInterval, "interval", 0, "re-run the sync on this interval until interrupted")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	if syncPrecise {
		settings.Sources.Wiki.Precise = true
		settings.Sources.Docs.Precise = true
	}

	// Periodic runs are unattended; nobody is there to confirm plans.
	writerCfg := services.WriterConfig{
		AutoConfirm: syncYes || syncInterval > 0,
		Confirm:     confirmPlan(cmd),
	}

	app, err := buildApp(ctx, settings, writerCfg, false)
	if err != nil {
		return err
	}
	defer app.close()

	if app.updater == nil {
		return errors.New("no document sources configured")
	}

	if syncInterval > 0 {
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cmd.Printf("Synchronising documents every %s. Press Ctrl+C to stop.\n", syncInterval)
		return services.NewSyncScheduler(app.updater, syncInterval).Start(ctx)
	}

	cmd.Println("Synchronising documents...")

	stats, err := app.updater.Run(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			cmd.Println("Sync cancelled.")
			return nil
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	cmd.Printf("Processed %d sources: %d uploaded, %d skipped, %d deleted.\n",
		stats.SourcesProcessed, stats.Uploaded, stats.Skipped, stats.Deleted)
	return nil
}

// confirmPlan prints a plan and asks for confirmation on stdin.
func confirmPlan(cmd *cobra.Command) services.ConfirmFunc {
	return func(plan domain.SyncPlan) bool {
		for _, record := range plan.Uploads {
			cmd.Printf("  upload %s\n", record.FileName)
		}
		for _, entry := range plan.Deletes {
			cmd.Printf("  delete %s\n", entry.Name)
		}
		cmd.Printf("Apply %d uploads and %d deletes? [y/N]: ", len(plan.Uploads), len(plan.Deletes))

		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}
