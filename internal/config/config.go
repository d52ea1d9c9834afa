package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Configはアプリ全体の設定
type Config struct {
	Port string

	// DATABASE_URLがあればPOSTGRES_*より優先
	DatabaseURL      string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string
	DBMaxOpenConns   int
	MigrateOnStart   bool

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CookieSecure    bool

	GoEnv     string // dev/prod
	APIDomain string
	FEURL     string // CORS許可オリジン

	// redis / db
	CartStore string
	RedisURL  string
	CartTTL   time.Duration

	// sandbox / stripe
	PaymentMode     string
	StripeSecretKey string
	PaymentTimeout  time.Duration

	Currency              string
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
	FreeShippingBasis     string
	DefaultCountry        string

	// ログイン/登録の1IPあたり毎分
	AuthRateLimit int
}

func (c Config) IsDev() bool {
	return c.GoEnv == "dev"
}

// Loadは環境変数から読む（.envはmainでgodotenvが読み込み済み）
func Load() (Config, error) {
	var err error
	cfg := Config{
		Port: getenv("PORT", "8080"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		GoEnv:     getenv("GO_ENV", "prod"),
		APIDomain: os.Getenv("API_DOMAIN"),
		FEURL:     os.Getenv("FE_URL"),

		CartStore: strings.ToLower(getenv("CART_STORE", "redis")),
		RedisURL:  os.Getenv("REDIS_URL"),

		PaymentMode:     strings.ToLower(getenv("PAYMENT_MODE", "sandbox")),
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),

		Currency:          strings.ToUpper(getenv("CURRENCY", "THB")),
		FreeShippingBasis: getenv("FREE_SHIPPING_BASIS", "discounted"),
		DefaultCountry:    getenv("DEFAULT_COUNTRY", "Thailand"),
	}

	if cfg.PostgresPort, err = atoi("POSTGRES_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxOpenConns, err = atoi("DB_MAX_OPEN_CONNS", 20); err != nil {
		return Config{}, err
	}
	if cfg.AuthRateLimit, err = atoi("AUTH_RATE_LIMIT", 10); err != nil {
		return Config{}, err
	}
	if cfg.MigrateOnStart, err = parseBool("MIGRATE_ON_START", true); err != nil {
		return Config{}, err
	}
	if cfg.CookieSecure, err = parseBool("COOKIE_SECURE", cfg.GoEnv != "dev"); err != nil {
		return Config{}, err
	}

	if cfg.AccessTokenTTL, err = duration("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = duration("REFRESH_TOKEN_TTL", 14*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.CartTTL, err = duration("CART_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.PaymentTimeout, err = duration("PAYMENT_TIMEOUT", 20*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.TaxRate, err = money("TAX_RATE", "0.07"); err != nil {
		return Config{}, err
	}
	if cfg.FreeShippingThreshold, err = money("FREE_SHIPPING_THRESHOLD", "999"); err != nil {
		return Config{}, err
	}
	if cfg.ShippingFee, err = money("SHIPPING_FEE", "100"); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// 必須チェック
func (c Config) validate() error {
	if c.DatabaseURL == "" {
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
		if c.PostgresPassword == "" {
			return fmt.Errorf("POSTGRES_PASSWORD is required")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 && !c.IsDev() {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if c.FEURL == "" {
		return fmt.Errorf("FE_URL is required")
	}

	switch c.CartStore {
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CART_STORE=redis")
		}
	case "db":
	default:
		return fmt.Errorf("CART_STORE must be redis or db")
	}

	switch c.PaymentMode {
	case "stripe":
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_MODE=stripe")
		}
	case "sandbox":
	default:
		return fmt.Errorf("PAYMENT_MODE must be sandbox or stripe")
	}

	if len(c.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be an ISO 4217 code")
	}
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("TAX_RATE must be in [0, 1)")
	}
	if c.ShippingFee.IsNegative() || c.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("shipping amounts must not be negative")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true/false: %w", key, err)
	}
	return b, nil
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

// 金額・率はfloatを通さない
func money(key, def string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getenv(key, def))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be decimal: %w", key, err)
	}
	return d, nil
}
