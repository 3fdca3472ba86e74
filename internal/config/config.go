package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/smm-storefront/pkg/logger"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every value read from the environment. Packages receive the
// pieces they need from main; nothing else reads os env directly.
type Config struct {
	AppEnv  string `env:"APP_ENV,default=dev"`
	AppName string `env:"APP_NAME,default=smm_storefront"`

	HttpListenAddr     string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=5s"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=smm:"`

	PromNamespace  string `env:"PROM_NAMESPACE,default=smm"`
	PromListenAddr string `env:"PROM_LISTEN_ADDR,default=:9100"`

	// HS256 secret shared with the identity provider that issues user tokens.
	JwtSecret   string `env:"JWT_SECRET"`
	JwtIssuer   string `env:"JWT_ISSUER"`
	JwtAudience string `env:"JWT_AUDIENCE,default=authenticated"`

	ReferralBonus   string `env:"REFERRAL_BONUS,default=100"`
	Currency        string `env:"CURRENCY,default=RWF"`
	MomoUssdCode    string `env:"MOMO_USSD_CODE,default=*182*8*1*594812#"`
	MomoDescription string `env:"MOMO_DESCRIPTION,default=Deposit via MTN Mobile Money"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE,default=30"`
	RateLimitBurst     int `env:"RATE_LIMIT_BURST,default=5"`

	QueueName              string        `env:"QUEUE_NAME,default=orders:placed"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=fulfillment"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME,default=processor"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS,default=4"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=5"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=500ms"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=100000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`

	FulfillmentWorkers       int           `env:"FULFILLMENT_WORKERS,default=16"`
	FulfillmentStatusSync    string        `env:"FULFILLMENT_STATUS_SYNC,default=@every 1m"`
	FulfillmentPendingSweep  string        `env:"FULFILLMENT_PENDING_SWEEP,default=@every 5m"`
	FulfillmentPendingMaxAge time.Duration `env:"FULFILLMENT_PENDING_MAX_AGE,default=10m"`

	// Fallback provider used when api_credentials has no row for a service's provider.
	ProviderName    string        `env:"PROVIDER_NAME,default=default"`
	ProviderUrl     string        `env:"PROVIDER_URL"`
	ProviderApiKey  string        `env:"PROVIDER_API_KEY"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT,default=10s"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	if err = c.validate(); err != nil {
		return err
	}

	config = c
	return nil
}

func (c *Config) validate() error {
	if c.JwtSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.QueueConsumers <= 0 {
		return errors.New("QUEUE_CONSUMERS must be positive")
	}
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the loaded config; used by tests and tools that build a Config in code.
func Set(c *Config) {
	config = c
}
