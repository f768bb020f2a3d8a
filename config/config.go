package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	env "github.com/caarlos0/env/v7"
	"github.com/joho/godotenv"
)

const minSecretLength = 32

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	AppEnv    string `env:"APP_ENV" envDefault:"development"`
	Version   string `env:"APP_VERSION" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json or text

	DB            DBConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Auth          AuthConfig
	SMS           SMSConfig
	Mailer        MailerConfig
	Scheduler     SchedulerConfig

	SentryDSN string `env:"SENTRY_DSN"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"fitness_crm"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
}

type KafkaConfig struct {
	Broker  string `env:"KAFKA_BROKER"`
	Topic   string `env:"KAFKA_TOPIC" envDefault:"crm_events"`
	GroupID string `env:"KAFKA_GROUP_ID" envDefault:"fitness-crm"`
}

type ElasticsearchConfig struct {
	URL   string `env:"ELASTICSEARCH_URL"`
	Index string `env:"ELASTICSEARCH_INDEX" envDefault:"customers"`
}

type AuthConfig struct {
	Secret          string        `env:"SESSION_SECRET,required"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	SessionMaxAge   time.Duration `env:"SESSION_MAX_AGE" envDefault:"168h"`
	CookieName      string        `env:"SESSION_COOKIE" envDefault:"crm_session"`
	CookieSecure    bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
	LoginRatePerMin int           `env:"LOGIN_RATE_PER_MINUTE" envDefault:"10"`
	AdminUsername   string        `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword   string        `env:"ADMIN_PASSWORD"`
	RolePresetsFile string        `env:"ROLE_PRESETS_FILE"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	StatsCacheTTL   time.Duration `env:"STATS_CACHE_TTL" envDefault:"60s"`
}

type SMSConfig struct {
	GatewayURL string        `env:"SMS_GATEWAY_URL"`
	APIKey     string        `env:"SMS_API_KEY"`
	Sender     string        `env:"SMS_SENDER"`
	Retries    int           `env:"SMS_RETRIES" envDefault:"3"`
	Timeout    time.Duration `env:"SMS_TIMEOUT" envDefault:"10s"`
}

type MailerConfig struct {
	Host     string `env:"MAILER_HOST"`
	Port     int    `env:"MAILER_PORT" envDefault:"587"`
	Login    string `env:"MAILER_LOGIN"`
	Password string `env:"MAILER_PASSWORD"`
	From     string `env:"MAILER_FROM"`
	FromName string `env:"MAILER_FROM_NAME" envDefault:"Fitness CRM"`
}

type SchedulerConfig struct {
	CampaignPollSpec     string        `env:"CAMPAIGN_POLL_SPEC" envDefault:"@every 1m"`
	MembershipExpirySpec string        `env:"MEMBERSHIP_EXPIRY_SPEC" envDefault:"5 0 * * *"`
	CleanupSpec          string        `env:"LIMITER_CLEANUP_SPEC" envDefault:"@every 10m"`
	JobTimeout           time.Duration `env:"JOB_TIMEOUT" envDefault:"10m"`
	CampaignSendRate     float64       `env:"CAMPAIGN_SEND_RATE" envDefault:"20"`
}

func New(envPath string) (Config, error) {
	var c Config

	err := godotenv.Load(envPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}

	if len(c.Auth.Secret) < minSecretLength {
		return Config{}, fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSecretLength)
	}

	return c, nil
}

func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DB.Host,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.Port,
		c.DB.SSLMode,
	)
}
