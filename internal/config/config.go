// Package config defines the configuration of the Litmus billing service.
// Configuration is loaded once at process start (or Lambda cold start) and is
// immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Payment-backend credentials are deliberately optional at load time: the
// billing endpoints report a missing key per request as a configuration error
// with a remediation hint, while the plan catalog keeps serving.
package config

import (
	"strings"
	"time"

	"litmus/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// DefaultFrontendURL is used when neither FRONTEND_URL nor URL is set.
const DefaultFrontendURL = "https://litmusai.netlify.app"

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"litmus-billing"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Stripe        StripeConfig
	Database      DatabaseConfig
	Supabase      SupabaseConfig
	Redis         RedisConfig
	AWS           AWSConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	Feature       FeatureConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`

	// FrontendURL is the primary base for redirect URLs. SiteURL is the
	// hosting platform's deploy URL and is used only when FrontendURL is empty.
	FrontendURL string `envconfig:"FRONTEND_URL" validate:"omitempty,url"`
	SiteURL     string `envconfig:"URL" validate:"omitempty,url"`
}

// StripeConfig holds payment backend credentials and checkout settings.
type StripeConfig struct {
	SecretKey      SecretString `envconfig:"STRIPE_SECRET_KEY"`
	PublishableKey string       `envconfig:"STRIPE_PUBLISHABLE_KEY"`
	WebhookSecret  SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`

	// MockMode is parsed leniently ("1", "true", "yes") by MockEnabled.
	MockMode string `envconfig:"STRIPE_MOCK_MODE"`

	PricePremium    string `envconfig:"STRIPE_PRICE_PREMIUM"`
	PriceEnterprise string `envconfig:"STRIPE_PRICE_ENTERPRISE"`

	APIBase          string        `envconfig:"STRIPE_API_BASE" default:"https://api.stripe.com" validate:"url"`
	Timeout          time.Duration `envconfig:"STRIPE_TIMEOUT" default:"20s"`
	WebhookTolerance time.Duration `envconfig:"STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
}

// DatabaseConfig holds the direct Postgres connection for the user store.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"5"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// SupabaseConfig holds the PostgREST gateway credentials and the JWT secret
// used to read caller identity from Supabase access tokens.
type SupabaseConfig struct {
	URL            string        `envconfig:"SUPABASE_URL" validate:"omitempty,url"`
	ServiceRoleKey SecretString  `envconfig:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret      SecretString  `envconfig:"SUPABASE_JWT_SECRET"`
	UsersTable     string        `envconfig:"SUPABASE_USERS_TABLE" default:"users"`
	Timeout        time.Duration `envconfig:"SUPABASE_TIMEOUT" default:"10s"`
}

// RedisConfig holds the webhook event ledger connection.
type RedisConfig struct {
	URL       SecretString  `envconfig:"REDIS_URL"`
	LedgerTTL time.Duration `envconfig:"WEBHOOK_LEDGER_TTL" default:"72h"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region            string `envconfig:"AWS_REGION" default:"us-east-1"`
	BillingEventQueue string `envconfig:"SQS_BILLING_EVENTS" validate:"omitempty,url"`
	EndpointURL       string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry and error-reporting settings.
type ObservabilityConfig struct {
	MetricNamespace  string       `envconfig:"METRIC_NAMESPACE" default:"Litmus"`
	SentryDSN        SecretString `envconfig:"SENTRY_DSN"`
	SentrySampleRate float64      `envconfig:"SENTRY_TRACES_SAMPLE_RATE" default:"0" validate:"gte=0,lte=1"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// FeatureConfig holds switches for optional routes.
type FeatureConfig struct {
	EnableDiagnostics bool `envconfig:"ENABLE_DIAGNOSTICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// FrontendBaseURL returns the base URL used for checkout and portal redirects,
// without a trailing slash.
func (c *Config) FrontendBaseURL() string {
	for _, u := range []string{c.Server.FrontendURL, c.Server.SiteURL} {
		if u = strings.TrimSpace(u); u != "" {
			return strings.TrimRight(u, "/")
		}
	}
	return DefaultFrontendURL
}

// MockEnabled reports whether checkout should bypass the payment backend.
func (s StripeConfig) MockEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(s.MockMode)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// Configured reports whether live payment-backend calls are possible.
func (s StripeConfig) Configured() bool {
	return s.SecretKey.IsSet()
}

// PriceIDFor returns the pre-created Stripe price for a plan, if configured.
func (s StripeConfig) PriceIDFor(plan types.PlanID) string {
	switch plan {
	case types.PlanPremium:
		return s.PricePremium
	case types.PlanEnterprise:
		return s.PriceEnterprise
	default:
		return ""
	}
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
