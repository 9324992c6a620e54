// Package config defines the configuration for the pagewatch engine.
// Configuration is loaded once at process initialization and is immutable
// thereafter, following 12-Factor principles: OS environment first, with an
// optional dotenv file for local development.
//
// The notification toggles live in NotifyConfig, which is passed explicitly
// into the engine — there is no ambient deployment state.
package config

import (
	"time"

	"pagewatch/internal/types"
)

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Mail     MailConfig
	Notify   NotifyConfig
}

// ServerConfig holds HTTP ingress settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"omitempty,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	NotifyQueueURL  string `envconfig:"SQS_NOTIFY_JOBS" validate:"omitempty,url"`
	SESConfigSet    string `envconfig:"SES_CONFIG_SET"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"PageWatch"`
}

// MailConfig holds transport-level mail settings.
type MailConfig struct {
	// Provider selects the mail transport implementation: "ses" or "stub".
	Provider string `envconfig:"MAIL_PROVIDER" default:"stub" validate:"oneof=ses stub"`

	NoReplyAddress string `envconfig:"MAIL_NO_REPLY_ADDRESS" default:"no-reply@pagewatch.local" validate:"email"`
	FromName       string `envconfig:"MAIL_FROM_NAME" default:"PageWatch notifications"`

	// Circuit breaker tuning for the mail transport.
	BreakerMaxFailures  int           `envconfig:"MAIL_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenInterval time.Duration `envconfig:"MAIL_BREAKER_OPEN_INTERVAL" default:"30s"`
}

// NotifyConfig carries the deployment-wide notification toggles. It is the
// explicit immutable configuration struct handed to the engine at
// construction; nothing in the pipeline reads globals.
type NotifyConfig struct {
	SiteName string `envconfig:"SITE_NAME" default:"PageWatch"`

	// BaseURL is the public document base used to build diff links
	// (no trailing slash).
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080" validate:"url"`

	// Impersonal switches the pipeline from one render per recipient to a
	// single shared render dispatched once with the full address list.
	Impersonal bool `envconfig:"NOTIFY_IMPERSONAL" default:"false"`

	// NotifyOnMinor permits notifications for minor edits.
	NotifyOnMinor bool `envconfig:"NOTIFY_MINOR_EDITS" default:"false"`

	// UseRealNames shows editors' real names instead of handles where one
	// is recorded.
	UseRealNames bool `envconfig:"NOTIFY_USE_REAL_NAMES" default:"false"`

	// EditorAddressAsFrom and EditorAddressAsReplyTo independently reveal
	// the editor's own address on outgoing mail. When neither is set the
	// no-reply address is used for both.
	EditorAddressAsFrom    bool `envconfig:"NOTIFY_EDITOR_AS_FROM" default:"false"`
	EditorAddressAsReplyTo bool `envconfig:"NOTIFY_EDITOR_AS_REPLY_TO" default:"false"`

	// RestrictedCannotLogin mirrors the deployment policy that blocks
	// restricted accounts from logging in; such accounts are then also
	// excluded from notifications.
	RestrictedCannotLogin bool `envconfig:"NOTIFY_BLOCK_DISABLES_LOGIN" default:"false"`

	// EmbedDiff includes the rendered diff in the rich-text body when a
	// previous revision exists.
	EmbedDiff bool `envconfig:"NOTIFY_EMBED_DIFF" default:"true"`

	// DeferDispatch enqueues the whole pipeline as a job instead of
	// running it inline. A binary choice made once per event.
	DeferDispatch bool `envconfig:"NOTIFY_DEFER_DISPATCH" default:"false"`

	// AllChangesRoster lists user ids subscribed to every change,
	// regardless of watch lists. Still subject to recipient policy.
	AllChangesRoster []string `envconfig:"NOTIFY_ALL_CHANGES_ROSTER"`

	// TalkNamespace is the document namespace whose pages belong to the
	// user named by the key's base segment.
	TalkNamespace string `envconfig:"NOTIFY_TALK_NAMESPACE" default:"UserTalk"`
}

// RosterIDs returns the all-changes roster as typed user ids.
func (c NotifyConfig) RosterIDs() []types.UserID {
	ids := make([]types.UserID, 0, len(c.AllChangesRoster))
	for _, s := range c.AllChangesRoster {
		if s == "" {
			continue
		}
		ids = append(ids, types.UserID(s))
	}
	return ids
}
