package issuer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alovak/cardflow-issuing/network"
	"github.com/joho/godotenv"
)

// LoginFailurePolicy decides what a rejected login does to an existing session.
type LoginFailurePolicy string

const (
	// KeepSessionOnFailedLogin leaves the previous token in place.
	KeepSessionOnFailedLogin LoginFailurePolicy = "keep"
	// ClearSessionOnFailedLogin drops the previous token.
	ClearSessionOnFailedLogin LoginFailurePolicy = "clear"
)

// Config is a configuration for the card management facade and its sandbox application
type Config struct {
	HTTPAddr string

	FailedLoginPolicy LoginFailurePolicy
	// PlatformAPIVersion is the API level of the host platform.
	PlatformAPIVersion int
	// MinCopyPanAPIVersion is the lowest platform API level that supports copying the PAN.
	MinCopyPanAPIVersion int

	// BreakerEnabled puts a circuit breaker in front of the card network.
	BreakerEnabled bool
	Breaker        network.BreakerConfig

	MetricsNamespace string

	// RepoBackend selects the sandbox card store: "mem" or "pg".
	RepoBackend string
	DatabaseDSN string
	// PANHashKey peppers PAN hashes stored by the pg sandbox store.
	PANHashKey string
	// CVVKey keys the sandbox security code renderer.
	CVVKey string
	// BINPrefix sets the sandbox BIN (6/8/9 digits).
	BINPrefix string
	// CardProduct is the default product of sandbox cards (credit or debit).
	CardProduct string
	// ExpiryTZ is an IANA timezone name used for sandbox expiry computations.
	ExpiryTZ string
	// SessionTokens are accepted by the sandbox as valid session tokens.
	SessionTokens []string
	// SandboxLatency delays every streamed sandbox answer.
	SandboxLatency time.Duration

	// DevRateLimit bounds requests per second per client on /dev routes.
	DevRateLimit float64
	DevRateBurst int
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:             "localhost:9090",
		FailedLoginPolicy:    KeepSessionOnFailedLogin,
		PlatformAPIVersion:   34,
		MinCopyPanAPIVersion: 33,
		BreakerEnabled:       true,
		Breaker:              network.DefaultBreakerConfig(),
		MetricsNamespace:     "card_management",
		RepoBackend:          "mem",
		CVVKey:               "sandbox-cvk-not-for-production",
		PANHashKey:           "dev-secret-pepper",
		BINPrefix:            "421234",
		CardProduct:          "debit",
		ExpiryTZ:             "UTC",
		DevRateLimit:         20,
		DevRateBurst:         40,
	}
}

// LoadConfig starts from DefaultConfig, loads envFile when it exists and
// applies environment overrides.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()
	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.FailedLoginPolicy = LoginFailurePolicy(getenv("FAILED_LOGIN_POLICY", string(cfg.FailedLoginPolicy)))
	cfg.MetricsNamespace = getenv("METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.RepoBackend = getenv("REPO_BACKEND", cfg.RepoBackend)
	cfg.DatabaseDSN = getenv("DB_DSN", cfg.DatabaseDSN)
	cfg.PANHashKey = getenv("PAN_HASH_KEY", cfg.PANHashKey)
	cfg.CVVKey = getenv("CVK_SANDBOX", cfg.CVVKey)
	cfg.BINPrefix = getenv("BIN_PREFIX", cfg.BINPrefix)
	cfg.CardProduct = getenv("CARD_PRODUCT", cfg.CardProduct)
	cfg.ExpiryTZ = getenv("EXPIRY_TZ", cfg.ExpiryTZ)

	var err error
	if cfg.PlatformAPIVersion, err = getenvInt("PLATFORM_API_VERSION", cfg.PlatformAPIVersion); err != nil {
		return nil, err
	}
	if cfg.MinCopyPanAPIVersion, err = getenvInt("MIN_COPY_PAN_API_VERSION", cfg.MinCopyPanAPIVersion); err != nil {
		return nil, err
	}
	if v := os.Getenv("BREAKER_ENABLED"); v != "" {
		if cfg.BreakerEnabled, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("parsing BREAKER_ENABLED: %w", err)
		}
	}
	if v := os.Getenv("BREAKER_TIMEOUT"); v != "" {
		if cfg.Breaker.Timeout, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("parsing BREAKER_TIMEOUT: %w", err)
		}
	}
	if v := os.Getenv("SANDBOX_LATENCY"); v != "" {
		if cfg.SandboxLatency, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("parsing SANDBOX_LATENCY: %w", err)
		}
	}
	if v := os.Getenv("DEV_RATE_LIMIT"); v != "" {
		if cfg.DevRateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("parsing DEV_RATE_LIMIT: %w", err)
		}
	}
	if cfg.DevRateBurst, err = getenvInt("DEV_RATE_BURST", cfg.DevRateBurst); err != nil {
		return nil, err
	}
	if v := os.Getenv("SESSION_TOKENS"); v != "" {
		for _, tok := range strings.Split(v, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				cfg.SessionTokens = append(cfg.SessionTokens, tok)
			}
		}
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.FailedLoginPolicy {
	case KeepSessionOnFailedLogin, ClearSessionOnFailedLogin:
	default:
		return fmt.Errorf("unsupported FAILED_LOGIN_POLICY=%s", c.FailedLoginPolicy)
	}
	switch c.RepoBackend {
	case "mem":
	case "pg":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DB_DSN is required for pg backend")
		}
	default:
		return fmt.Errorf("unsupported REPO_BACKEND=%s", c.RepoBackend)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", k, err)
	}
	return n, nil
}
