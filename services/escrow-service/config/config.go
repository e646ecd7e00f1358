package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	awspkg "github.com/cjsinari/marikiti-backend/pkg/aws"
	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	Env            string
	AllowedOrigins string

	MongoURI        string
	MongoDB         string
	OrderCollection string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL       string
	CartTTL        time.Duration
	IdempotencyTTL time.Duration

	ProductsTable    string
	DynamoDBEndpoint string

	MpesaBaseURL        string
	MpesaCallbackSecret string
	GatewayTimeout      time.Duration
	StatusTimeout       time.Duration
	PersistenceTimeout  time.Duration

	JWTSecret string

	EventBus              string // "sns" or "kafka"
	OrderSNSTopicARN      string
	PaymentSNSTopicARN    string
	KafkaBrokers          []string
	OrderKafkaTopic       string
	PaymentKafkaTopic     string
	PaymentCallbackQueue  string
	UploadBucket          string
	UploadPrefix          string
	UploadPublicBaseURL   string
	CloudWatchEnabled     bool
	CloudWatchNamespace   string
	CloudWatchLogGroup    string
	UseSecretsManager     bool
	CheckoutRatePerMinute int
}

// LoadConfig reads configuration from the environment (and .env when present),
// optionally overriding credentials from AWS Secrets Manager.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8092"),
		Env:            getEnv("APP_ENV", "development"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDB:         getEnv("MONGO_DB", "marikiti"),
		OrderCollection: getEnv("MONGO_ORDERS_COLLECTION", "orders"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "Africa/Nairobi"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		ProductsTable:    getEnv("DYNAMODB_PRODUCTS_TABLE", "products"),
		DynamoDBEndpoint: os.Getenv("DYNAMODB_ENDPOINT"),

		MpesaBaseURL:        getEnv("MPESA_BASE_URL", "http://localhost:3000"),
		MpesaCallbackSecret: os.Getenv("MPESA_CALLBACK_SECRET"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		EventBus:             strings.ToLower(getEnv("EVENT_BUS", "sns")),
		OrderSNSTopicARN:     os.Getenv("ORDER_SNS_TOPIC_ARN"),
		PaymentSNSTopicARN:   os.Getenv("PAYMENT_SNS_TOPIC_ARN"),
		KafkaBrokers:         splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		OrderKafkaTopic:      getEnv("ORDER_KAFKA_TOPIC", "order-events"),
		PaymentKafkaTopic:    getEnv("PAYMENT_KAFKA_TOPIC", "payment-events"),
		PaymentCallbackQueue: os.Getenv("PAYMENT_CALLBACK_QUEUE_URL"),
		UploadBucket:         os.Getenv("UPLOAD_BUCKET"),
		UploadPrefix:         getEnv("UPLOAD_PREFIX", "listings"),
		UploadPublicBaseURL:  os.Getenv("UPLOAD_PUBLIC_BASE_URL"),
		CloudWatchEnabled:    os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchNamespace:  getEnv("CLOUDWATCH_NAMESPACE", "Marikiti"),
		CloudWatchLogGroup:   getEnv("CLOUDWATCH_LOG_GROUP", "/marikiti/services"),
		UseSecretsManager:    os.Getenv("AWS_USE_SECRETS") == "true",
	}

	var err error
	if cfg.CartTTL, err = getDuration("CART_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.GatewayTimeout, err = getDuration("GATEWAY_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.StatusTimeout, err = getDuration("GATEWAY_STATUS_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.PersistenceTimeout, err = getDuration("PERSISTENCE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CheckoutRatePerMinute, err = getInt("CHECKOUT_RATE_PER_MINUTE", 10); err != nil {
		return nil, err
	}

	if cfg.UseSecretsManager {
		cfg.applySecrets(context.Background())
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applySecrets overrides database credentials and shared secrets from
// Secrets Manager. Missing secrets leave the environment values in place.
func (c *Config) applySecrets(ctx context.Context) {
	awsCfg, err := awspkg.LoadAWSConfig(ctx)
	if err != nil {
		return
	}
	sm := awspkg.NewSecretsClient(awsCfg)

	if m, err := sm.GetSecretMap(ctx, "escrow/DB_CREDENTIALS"); err == nil {
		overrideFrom(m, "POSTGRES_USER", &c.PostgresUser)
		overrideFrom(m, "POSTGRES_PASSWORD", &c.PostgresPassword)
		overrideFrom(m, "POSTGRES_DB", &c.PostgresDB)
		overrideFrom(m, "POSTGRES_HOST", &c.PostgresHost)
		overrideFrom(m, "POSTGRES_PORT", &c.PostgresPort)
		overrideFrom(m, "MONGO_URI", &c.MongoURI)
	}
	if v, err := sm.GetSecret(ctx, "escrow/MPESA_CALLBACK_SECRET"); err == nil && v != "" {
		c.MpesaCallbackSecret = v
	}
	if v, err := sm.GetSecret(ctx, "escrow/JWT_SECRET"); err == nil && v != "" {
		c.JWTSecret = v
	}
}

func (c *Config) validate() error {
	var missing []string
	if c.PostgresUser == "" {
		missing = append(missing, "POSTGRES_USER")
	}
	if c.PostgresPassword == "" {
		missing = append(missing, "POSTGRES_PASSWORD")
	}
	if c.PostgresDB == "" {
		missing = append(missing, "POSTGRES_DB")
	}
	if c.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.EventBus != "sns" && c.EventBus != "kafka" {
		return fmt.Errorf("EVENT_BUS must be sns or kafka, got %q", c.EventBus)
	}
	if c.CheckoutRatePerMinute <= 0 {
		return fmt.Errorf("CHECKOUT_RATE_PER_MINUTE must be positive, got %d", c.CheckoutRatePerMinute)
	}
	return nil
}

// PostgresDSN builds the lib/pq style DSN understood by the gorm postgres driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

// CheckoutTimeout bounds a POST /checkout request: the cart load, order write
// and payment write ahead of the push, then the push itself.
func (c *Config) CheckoutTimeout() time.Duration {
	return c.GatewayTimeout + 3*c.PersistenceTimeout
}

func overrideFrom(m map[string]string, key string, dst *string) {
	if v, ok := m[key]; ok && v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
