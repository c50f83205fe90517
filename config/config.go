package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName      string `env:"USERS_APP_NAME" envDefault:"users-service"`
	AppEnv       string `env:"USERS_APP_ENV" envDefault:"local"`
	HTTPHost     string `env:"USERS_HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort     string `env:"USERS_HTTP_PORT" envDefault:"8080"`
	HTTPBasePath string `env:"USERS_HTTP_BASE_PATH" envDefault:"/api/v1"`

	DBHost     string `env:"USERS_DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"USERS_DB_PORT" envDefault:"5432"`
	DBUser     string `env:"USERS_DB_USER" envDefault:"app"`
	DBPassword string `env:"USERS_DB_PASSWORD" envDefault:"app_password"`
	DBName     string `env:"USERS_DB_NAME" envDefault:"usersdb"`
	DBSSLMode  string `env:"USERS_DB_SSLMODE" envDefault:"disable"`

	JWTSecret     string        `env:"USERS_JWT_SECRET"`
	JWTPrivateKey string        `env:"USERS_JWT_PRIVATE_KEY"`
	JWTPublicKey  string        `env:"USERS_JWT_PUBLIC_KEY"`
	JWTAudience   string        `env:"USERS_JWT_AUDIENCE" envDefault:"frontend"`
	JWTIssuer     string        `env:"USERS_JWT_ISSUER" envDefault:"users-service"`
	AccessTTL     time.Duration `env:"USERS_JWT_ACCESS_TTL" envDefault:"30m"`
	RefreshTTL    time.Duration `env:"USERS_JWT_REFRESH_TTL" envDefault:"168h"`

	VerificationTTL time.Duration `env:"USERS_VERIFICATION_TTL" envDefault:"24h"`
	FrontendURL     string        `env:"USERS_FRONTEND_URL" envDefault:"http://localhost:3000"`

	MailGatewayURL string `env:"USERS_MAIL_GATEWAY_URL"`
	MailFrom       string `env:"USERS_MAIL_FROM" envDefault:"noreply@taskflow.com"`

	OAuthGatewayURL string `env:"USERS_OAUTH_GATEWAY_URL"`

	NATSURL           string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSVerifySubject string `env:"NATS_SUBJECT_VERIFY_JWT" envDefault:"users.verifyJWT"`
	NATSEventsSubject string `env:"NATS_SUBJECT_USER_EVENTS" envDefault:"users.events"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
