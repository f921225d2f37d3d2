// Package file loads Perch settings from a TOML file.
package file

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Settings is the full Perch configuration. Secret-bearing fields hold
// secret NAMES resolved through the secret store at wire-up, never the
// secret values themselves.
type Settings struct {
	Server    ServerSettings    `toml:"server"`
	Slack     SlackSettings     `toml:"slack"`
	Assistant AssistantSettings `toml:"assistant"`
	Sources   SourceSettings    `toml:"sources"`
	Storage   StorageSettings   `toml:"storage"`
	Dedup     DedupSettings     `toml:"dedup"`
	Analytics AnalyticsSettings `toml:"analytics"`
	Secrets   SecretsSettings   `toml:"secrets"`
}

// SecretsSettings selects where secret names resolve from.
type SecretsSettings struct {
	// Backend selects "env" or "aws".
	Backend string `toml:"backend"`

	// Prefix is prepended to every secret name.
	Prefix string `toml:"prefix"`
}

// ServerSettings configures the HTTP event listener.
type ServerSettings struct {
	ListenAddr string `toml:"listen_addr"`
	Verbose    bool   `toml:"verbose"`
}

// SlackSettings configures the Slack surface.
type SlackSettings struct {
	BotUserID         string   `toml:"bot_user_id"`
	AllowedChannels   []string `toml:"allowed_channels"`
	TriggerReaction   string   `toml:"trigger_reaction"`
	BotTokenName      string   `toml:"bot_token_name"`
	SigningSecretName string   `toml:"signing_secret_name"`
}

// AssistantSettings configures the RAG backend.
type AssistantSettings struct {
	Name       string `toml:"name"`
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	APIKeyName string `toml:"api_key_name"`
}

// SourceSettings configures the document sources the sync run pulls
// from. A section left empty disables that source.
type SourceSettings struct {
	Wiki  WikiSourceSettings  `toml:"wiki"`
	Docs  DocsSourceSettings  `toml:"docs"`
	Local LocalSourceSettings `toml:"local"`
}

// WikiSourceSettings configures the wiki document source.
type WikiSourceSettings struct {
	BaseURL       string `toml:"base_url"`
	PublicBaseURL string `toml:"public_base_url"`
	TokenName     string `toml:"token_name"`
	Precise       bool   `toml:"precise"`
}

// DocsSourceSettings configures the product docs feed source.
type DocsSourceSettings struct {
	FeedURL string `toml:"feed_url"`
	Precise bool   `toml:"precise"`
}

// LocalSourceSettings configures the local directory source.
type LocalSourceSettings struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

// StorageSettings configures the S3 mirror of normalised documents.
// Empty bucket disables mirroring.
type StorageSettings struct {
	Bucket string `toml:"bucket"`
	Prefix string `toml:"prefix"`
}

// DedupSettings configures the event deduplication store.
type DedupSettings struct {
	// Backend selects "sqlite" or "dynamo".
	Backend string `toml:"backend"`

	// DataDir is the sqlite data directory.
	DataDir string `toml:"data_dir"`

	// Table is the DynamoDB table name.
	Table string `toml:"table"`

	// TTLMinutes bounds how long an event key blocks duplicates.
	TTLMinutes int `toml:"ttl_minutes"`
}

// AnalyticsSettings configures the Tinybird analytics sink. Empty token
// name disables analytics.
type AnalyticsSettings struct {
	TokenName  string `toml:"token_name"`
	BaseURL    string `toml:"base_url"`
	DataSource string `toml:"data_source"`
}

// DefaultPath returns the default settings file location,
// ~/.perch/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".perch", "config.toml"), nil
}

// Load reads settings from a TOML file and applies defaults. A missing
// file yields pure defaults; a malformed file is an error.
func Load(path string) (*Settings, error) {
	settings := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	if err := toml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}

	applyDefaults(settings)
	return settings, nil
}

func defaults() *Settings {
	s := &Settings{}
	applyDefaults(s)
	return s
}

func applyDefaults(s *Settings) {
	if s.Server.ListenAddr == "" {
		s.Server.ListenAddr = ":8080"
	}
	if len(s.Slack.AllowedChannels) == 0 {
		s.Slack.AllowedChannels = []string{"*"}
	}
	if s.Slack.TriggerReaction == "" {
		s.Slack.TriggerReaction = "perch"
	}
	if s.Assistant.Name == "" {
		s.Assistant.Name = "perch"
	}
	if s.Storage.Prefix == "" {
		s.Storage.Prefix = "docs/"
	}
	if s.Dedup.Backend == "" {
		s.Dedup.Backend = "sqlite"
	}
	if s.Dedup.TTLMinutes == 0 {
		s.Dedup.TTLMinutes = 60
	}
	if s.Analytics.DataSource == "" {
		s.Analytics.DataSource = "chat_history"
	}
	if s.Secrets.Backend == "" {
		s.Secrets.Backend = "env"
	}
}
