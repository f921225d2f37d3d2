package cli

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamo "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awssm "github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/perch-labs/perch/internal/adapters/driven/analytics/tinybird"
	"github.com/perch-labs/perch/internal/adapters/driven/assistant/pinecone"
	slackchat "github.com/perch-labs/perch/internal/adapters/driven/chat/slack"
	"github.com/perch-labs/perch/internal/adapters/driven/config/file"
	dynamodedup "github.com/perch-labs/perch/internal/adapters/driven/dedup/dynamo"
	sqlitededup "github.com/perch-labs/perch/internal/adapters/driven/dedup/sqlite"
	s3store "github.com/perch-labs/perch/internal/adapters/driven/objectstore/s3"
	"github.com/perch-labs/perch/internal/adapters/driven/secrets"
	"github.com/perch-labs/perch/internal/connectors/llmsfull"
	"github.com/perch-labs/perch/internal/connectors/localdir"
	"github.com/perch-labs/perch/internal/connectors/wiki"
	"github.com/perch-labs/perch/internal/core/ports/driven"
	"github.com/perch-labs/perch/internal/core/ports/driving"
	"github.com/perch-labs/perch/internal/core/services"
	"github.com/perch-labs/perch/internal/logger"
	"github.com/perch-labs/perch/internal/normalisers/markdown"
)

// Default secret names, overridable per settings section.
const (
	defaultBotTokenName      = "slack-bot-token"
	defaultSigningSecretName = "slack-signing-secret"
	defaultAPIKeyName        = "assistant-api-key"
	defaultWikiTokenName     = "wiki-api-token"
	defaultAnalyticsToken    = "tinybird-token"
)

// changeWatcher watches a document source for changes, invoking fn
// after each settled batch.
type changeWatcher interface {
	Watch(ctx context.Context, fn func()) error
}

// app holds the wired adapters one command run needs.
type app struct {
	settings *file.Settings
	secrets  driven.SecretStore

	assistant driven.Assistant
	messenger driven.Messenger
	analytics driven.AnalyticsSink
	dedup     driven.DedupStore
	updater   driving.Updater
	watcher   changeWatcher

	signingSecret string

	// closers run in reverse order on shutdown.
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("closing adapter: %v", err)
		}
	}
}

func secretName(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

// newSecretStore builds the configured secret backend. The aws backend
// still checks environment variables first so individual secrets can be
// overridden without touching Secrets Manager.
func newSecretStore(ctx context.Context, cfg file.SecretsSettings) (driven.SecretStore, error) {
	switch cfg.Backend {
	case "env":
		return secrets.NewEnvStore(cfg.Prefix), nil
	case "aws":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		return secrets.NewChain(
			secrets.NewEnvStore(""),
			secrets.NewManagerStore(awssm.NewFromConfig(awsCfg), cfg.Prefix),
		), nil
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", cfg.Backend)
	}
}

// buildApp wires every adapter the serve command needs. forServe also
// wires the chat surface; the sync command skips it.
func buildApp(ctx context.Context, settings *file.Settings, writerCfg services.WriterConfig, forServe bool) (*app, error) {
	a := &app{settings: settings}

	secretStore, err := newSecretStore(ctx, settings.Secrets)
	if err != nil {
		return nil, err
	}
	a.secrets = secretStore

	apiKey, err := secretStore.Get(ctx, secretName(settings.Assistant.APIKeyName, defaultAPIKeyName))
	if err != nil {
		return nil, err
	}
	assistant, err := pinecone.New(pinecone.Config{
		APIKey:        apiKey,
		AssistantName: settings.Assistant.Name,
		BaseURL:       settings.Assistant.BaseURL,
		Model:         settings.Assistant.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring assistant: %w", err)
	}
	a.assistant = assistant

	if err := a.buildUpdater(ctx, writerCfg); err != nil {
		return nil, err
	}

	if !forServe {
		return a, nil
	}

	botToken, err := secretStore.Get(ctx, secretName(settings.Slack.BotTokenName, defaultBotTokenName))
	if err != nil {
		return nil, err
	}
	if botToken == "" {
		return nil, fmt.Errorf("slack bot token is not configured")
	}
	a.messenger = slackchat.New(botToken)

	if a.signingSecret, err = secretStore.Get(ctx, secretName(settings.Slack.SigningSecretName, defaultSigningSecretName)); err != nil {
		return nil, err
	}
	if a.signingSecret == "" {
		logger.Warn("no signing secret configured, request signatures will not be verified")
	}

	if err := a.buildAnalytics(ctx); err != nil {
		return nil, err
	}
	if err := a.buildDedup(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) buildAnalytics(ctx context.Context) error {
	name := a.settings.Analytics.TokenName
	if name == "" {
		name = defaultAnalyticsToken
	}
	token, err := a.secrets.Get(ctx, name)
	if err != nil {
		return err
	}
	if token == "" {
		logger.Warn("no analytics token configured, analytics disabled")
		return nil
	}

	sink, err := tinybird.New(tinybird.Config{
		Token:      token,
		BaseURL:    a.settings.Analytics.BaseURL,
		DataSource: a.settings.Analytics.DataSource,
	})
	if err != nil {
		return fmt.Errorf("configuring analytics: %w", err)
	}
	a.analytics = sink
	return nil
}

func (a *app) buildDedup(ctx context.Context) error {
	switch a.settings.Dedup.Backend {
	case "sqlite":
		store, err := sqlitededup.NewStore(a.settings.Dedup.DataDir)
		if err != nil {
			return fmt.Errorf("opening dedup store: %w", err)
		}
		a.dedup = store
		a.closers = append(a.closers, store.Close)
		return nil
	case "dynamo":
		if a.settings.Dedup.Table == "" {
			return fmt.Errorf("dedup backend dynamo requires a table name")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		a.dedup = dynamodedup.New(awsdynamo.NewFromConfig(awsCfg), a.settings.Dedup.Table)
		return nil
	default:
		return fmt.Errorf("unknown dedup backend %q", a.settings.Dedup.Backend)
	}
}

// buildUpdater wires the configured document sources into the sync
// pipeline. No sources configured leaves the updater nil.
func (a *app) buildUpdater(ctx context.Context, writerCfg services.WriterConfig) error {
	sources := a.settings.Sources

	var targets []services.SourceTarget
	mirror := a.settings.Storage.Bucket != ""

	if sources.Wiki.BaseURL != "" {
		token, err := a.secrets.Get(ctx, secretName(sources.Wiki.TokenName, defaultWikiTokenName))
		if err != nil {
			return err
		}
		targets = append(targets, services.SourceTarget{
			Source: wiki.New(wiki.Config{
				BaseURL:       sources.Wiki.BaseURL,
				PublicBaseURL: sources.Wiki.PublicBaseURL,
				Token:         token,
			}),
			Precise:         sources.Wiki.Precise,
			MirrorToObjects: mirror,
		})
	}
	if sources.Docs.FeedURL != "" {
		targets = append(targets, services.SourceTarget{
			Source:          llmsfull.New(llmsfull.Config{FeedURL: sources.Docs.FeedURL}),
			Precise:         sources.Docs.Precise,
			MirrorToObjects: mirror,
		})
	}
	if sources.Local.Dir != "" {
		local := localdir.New(sources.Local.Dir)
		targets = append(targets, services.SourceTarget{
			Source:          local,
			MirrorToObjects: mirror,
		})
		if sources.Local.Watch {
			a.watcher = local
		}
	}
	if len(targets) == 0 {
		logger.Warn("no document sources configured, sync disabled")
		return nil
	}

	var objects driven.ObjectStore
	if mirror {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		objects = s3store.New(awss3.NewFromConfig(awsCfg), a.settings.Storage.Bucket)
	}

	writer := services.NewWriter(a.assistant, writerCfg)
	a.updater = services.NewDocUpdater(
		targets,
		markdown.New(),
		a.assistant,
		writer,
		objects,
		a.settings.Storage.Prefix,
	)
	return nil
}

func dedupTTL(settings *file.Settings) time.Duration {
	return time.Duration(settings.Dedup.TTLMinutes) * time.Minute
}
