package cli

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/perch-labs/perch/internal/adapters/driving/httpapi"
	"github.com/perch-labs/perch/internal/core/ports/driving"
	"github.com/perch-labs/perch/internal/core/services"
	"github.com/perch-labs/perch/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat event listener",
	Long: `Starts the HTTP server that receives workspace events and answers
questions through the assistant backend. Runs until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sync runs triggered from chat apply without prompting.
	writerCfg := services.WriterConfig{AutoConfirm: true}

	app, err := buildApp(ctx, settings, writerCfg, true)
	if err != nil {
		return err
	}
	defer app.close()

	contexts := services.NewContextBuilder(app.messenger, services.DefaultMaxThreadMessages)
	parser := services.NewEventParser(contexts)
	gate := services.NewDedupGate(app.dedup, dedupTTL(settings))

	pipeline := services.NewPipeline(
		parser,
		gate,
		contexts,
		app.assistant,
		app.messenger,
		app.analytics,
		app.updater,
		services.PipelineConfig{
			BotUserID:       settings.Slack.BotUserID,
			AllowList:       strings.Join(settings.Slack.AllowedChannels, ","),
			TriggerReaction: settings.Slack.TriggerReaction,
		},
	)

	server := httpapi.New(httpapi.Config{
		ListenAddr:    settings.Server.ListenAddr,
		SigningSecret: app.signingSecret,
	}, pipeline)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	if app.watcher != nil {
		go watchAndSync(ctx, app.watcher, app.updater)
	}

	cmd.Printf("Listening on %s\n", settings.Server.ListenAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// watchAndSync re-runs the document updater whenever the watched
// source reports a settled batch of changes. Runs until the context
// is cancelled.
func watchAndSync(ctx context.Context, watcher changeWatcher, updater driving.Updater) {
	err := watcher.Watch(ctx, func() {
		logger.Info("local documents changed, running sync")
		if _, err := updater.Run(ctx); err != nil {
			if ctx.Err() == nil {
				logger.Error("watch-triggered sync failed: %v", err)
			}
		}
	})
	if err != nil {
		logger.Error("document watcher stopped: %v", err)
	}
}
