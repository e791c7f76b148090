package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs    LogConfig
	DB      PostgresConfig
	Stripe  StripeConfig
	Pricing PricingConfig
	Scoring ScoringConfig
	Storage StorageConfig
	Queue   QueueConfig
	HTTP    HTTPConfig
	Auth    AuthConfig
}

type LogConfig struct {
	// Style picks the stdlib log prefix: "std" (default), "utc", "short"
	// adds file:line, "bare" drops the timestamp for runtimes that add their
	// own.
	Style string
	Level string
}

// Flags returns the log.SetFlags value for Style.
func (l LogConfig) Flags() int {
	switch strings.ToLower(l.Style) {
	case "utc":
		return log.LstdFlags | log.Lmicroseconds | log.LUTC
	case "short":
		return log.LstdFlags | log.Lshortfile
	case "bare":
		return 0
	default:
		return log.LstdFlags
	}
}

// Debug turns on the reconciliation trace lines.
func (l LogConfig) Debug() bool {
	return strings.EqualFold(l.Level, "debug")
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Name     string
	SSLMode  string
}

// Enabled is false when no database host is configured; the server then runs
// on the in-memory store.
func (p PostgresConfig) Enabled() bool {
	return p.URL != ""
}

func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.Username, p.Password),
		Host:   p.URL,
		Path:   "/" + p.Name,
	}
	if p.Port != "" {
		u.Host = p.URL + ":" + p.Port
	}
	q := url.Values{}
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	FrontendURL   string
	Currency      string
}

// SuccessURL is where the gateway returns the user; the session id is filled
// in by Stripe so the client can poll it.
func (s StripeConfig) SuccessURL() string {
	return strings.TrimRight(s.FrontendURL, "/") + "/billing/success?session_id={CHECKOUT_SESSION_ID}"
}

func (s StripeConfig) CancelURL() string {
	return strings.TrimRight(s.FrontendURL, "/") + "/billing/cancel"
}

// PricingConfig is in cents.
type PricingConfig struct {
	Subscription       int64
	ATSCredit          int64
	OptimizationCredit int64
	Review             int64
	SubscriptionPeriod time.Duration
}

type ScoringConfig struct {
	Provider     string
	GeminiAPIKey string
	GeminiModel  string
}

type StorageConfig struct {
	Dir      string
	S3Bucket string
	S3Prefix string
}

type QueueConfig struct {
	URL string
}

type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
}

type AuthConfig struct {
	Issuer        string
	Audience      string
	OperatorScope string
}

// RequireSharedState fails unless every piece of state lives outside the
// process. Deployments that run several instances, such as Lambda, need it:
// a webhook may land on a different instance than the checkout that created
// the session.
func (c *Config) RequireSharedState() error {
	var missing []string
	if !c.DB.Enabled() {
		missing = append(missing, "POSTGRES_URL")
	}
	if c.Storage.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if len(missing) > 0 {
		return errors.New(strings.Join(missing, ", ") + " must be set")
	}
	return nil
}

func LoadConfig() (*Config, error) {
	var err error
	cfg := &Config{
		Logs: LogConfig{
			Style: os.Getenv("LOG_STYLE"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     os.Getenv("POSTGRES_PORT"),
			Name:     getenv("POSTGRES_DB", "postgres"),
			SSLMode:  os.Getenv("POSTGRES_SSLMODE"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			FrontendURL:   getenv("FRONTEND_URL", "http://localhost:3000"),
			Currency:      strings.ToLower(getenv("STRIPE_CURRENCY", "usd")),
		},
		Scoring: ScoringConfig{
			Provider:     strings.ToLower(getenv("SCORING_PROVIDER", "heuristic")),
			GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
			GeminiModel:  getenv("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Storage: StorageConfig{
			Dir:      getenv("STORAGE_DIR", "./uploads"),
			S3Bucket: os.Getenv("S3_BUCKET"),
			S3Prefix: getenv("S3_PREFIX", "resumes"),
		},
		Queue: QueueConfig{
			URL: os.Getenv("QUEUE_URL"),
		},
		HTTP: HTTPConfig{
			Addr:           getenv("HTTP_ADDR", "0.0.0.0:8080"),
			AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "*")),
		},
		Auth: AuthConfig{
			Issuer:        os.Getenv("AUTH0_ISSUER"),
			Audience:      os.Getenv("AUTH0_AUDIENCE"),
			OperatorScope: getenv("OPERATOR_SCOPE", "admin:reviews"),
		},
	}

	if cfg.Pricing.Subscription, err = cents("PRICE_SUBSCRIPTION_CENTS", 1500); err != nil {
		return nil, err
	}
	if cfg.Pricing.ATSCredit, err = cents("PRICE_ATS_CREDIT_CENTS", 500); err != nil {
		return nil, err
	}
	if cfg.Pricing.OptimizationCredit, err = cents("PRICE_OPTIMIZATION_CREDIT_CENTS", 1000); err != nil {
		return nil, err
	}
	if cfg.Pricing.Review, err = cents("PRICE_REVIEW_CENTS", 3000); err != nil {
		return nil, err
	}
	days, err := cents("SUBSCRIPTION_PERIOD_DAYS", 30)
	if err != nil {
		return nil, err
	}
	cfg.Pricing.SubscriptionPeriod = time.Duration(days) * 24 * time.Hour

	switch cfg.Scoring.Provider {
	case "heuristic":
	case "gemini":
		if cfg.Scoring.GeminiAPIKey == "" {
			return nil, fmt.Errorf("SCORING_PROVIDER=gemini requires GEMINI_API_KEY")
		}
	default:
		return nil, fmt.Errorf("SCORING_PROVIDER: unknown provider %q", cfg.Scoring.Provider)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// cents parses a positive integer variable, falling back when unset.
func cents(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("error converting string to int: %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, v)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
