package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	Port   string `env:"PORT,default=5000"`
	AppURL string `env:"APP_URL,default=http://localhost:3000"`

	DatabaseURL string `env:"DATABASE_URL"`
	DB          DBConfig

	JWTSecret    string        `env:"JWT_SECRET,required"`
	JWTExpiresIn time.Duration `env:"JWT_EXPIRES_IN,default=72h"`
	ResetTTL     time.Duration `env:"PASSWORD_RESET_TTL,default=30m"`
	BcryptCost   int           `env:"BCRYPT_COST,default=12"`

	AuthRateLimit float64 `env:"AUTH_RATE_LIMIT,default=20"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	RedisAddr string `env:"REDIS_ADDR,default=127.0.0.1:6379"`
	RunWorker bool   `env:"RUN_WORKER,default=true"`

	Mail       MailConfig
	Storage    StorageConfig
	Cloudinary CloudinaryConfig
}

type DBConfig struct {
	User     string `env:"DB_USER,default=postgres"`
	Password string `env:"DB_PASSWORD"`
	Host     string `env:"DB_HOST,default=localhost"`
	Port     string `env:"DB_PORT,default=5432"`
	Name     string `env:"DB_NAME,default=bidhub"`
	SSLMode  string `env:"DB_SSLMODE,default=disable"`
}

type MailConfig struct {
	// Provider is one of smtp, plunk or log.
	Provider string `env:"MAIL_PROVIDER,default=log"`
	From     string `env:"MAIL_FROM,default=BidHub <no-reply@bidhub.local>"`
	ReplyTo  string `env:"MAIL_REPLY_TO"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT,default=465"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	PlunkAPIKey string `env:"PLUNK_API_KEY"`
	PlunkAPIURL string `env:"PLUNK_API_URL,default=https://api.useplunk.com/v1/send"`
}

type StorageConfig struct {
	// Driver is one of local or cloudinary.
	Driver    string `env:"STORAGE_DRIVER,default=local"`
	UploadDir string `env:"UPLOAD_DIR,default=./uploads"`
	PublicURL string `env:"PUBLIC_URL,default=http://localhost:5000"`
}

type CloudinaryConfig struct {
	CloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	APIKey    string `env:"CLOUDINARY_API_KEY"`
	APISecret string `env:"CLOUDINARY_API_SECRET"`
	Folder    string `env:"CLOUDINARY_FOLDER,default=deliverables"`
	APIBase   string `env:"CLOUDINARY_API_BASE,default=https://api.cloudinary.com/v1_1"`
}

// Load reads an optional .env file and decodes the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	if c.JWTExpiresIn <= 0 {
		return errors.New("config: JWT_EXPIRES_IN must be positive")
	}
	switch c.Mail.Provider {
	case "log", "plunk":
	case "smtp":
		if c.Mail.SMTPHost == "" || c.Mail.SMTPUsername == "" || c.Mail.SMTPPassword == "" {
			return errors.New("config: smtp not configured: set SMTP_HOST, SMTP_USERNAME, SMTP_PASSWORD")
		}
	default:
		return fmt.Errorf("config: unknown MAIL_PROVIDER %q", c.Mail.Provider)
	}
	if c.Mail.Provider == "plunk" && c.Mail.PlunkAPIKey == "" {
		return errors.New("config: plunk not configured: set PLUNK_API_KEY")
	}
	switch c.Storage.Driver {
	case "local":
	case "cloudinary":
		if c.Cloudinary.CloudName == "" || c.Cloudinary.APIKey == "" || c.Cloudinary.APISecret == "" {
			return errors.New("config: cloudinary not configured: set CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY, CLOUDINARY_API_SECRET")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	return nil
}

// DSN prefers DATABASE_URL and otherwise assembles one from the DB_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     c.DB.Host + ":" + c.DB.Port,
		Path:     "/" + c.DB.Name,
		RawQuery: "sslmode=" + c.DB.SSLMode,
	}
	return u.String()
}

func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}
