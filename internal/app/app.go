package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	nats "github.com/nats-io/nats.go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/Kimkangyeon-17/teskflow/config"
	httpadapter "github.com/Kimkangyeon-17/teskflow/internal/adapters/http"
	apiv1 "github.com/Kimkangyeon-17/teskflow/internal/adapters/http/api/v1"
	handlers "github.com/Kimkangyeon-17/teskflow/internal/adapters/http/api/v1/handlers"
	authmw "github.com/Kimkangyeon-17/teskflow/internal/adapters/http/middleware"
	"github.com/Kimkangyeon-17/teskflow/internal/adapters/mailer"
	natsadapter "github.com/Kimkangyeon-17/teskflow/internal/adapters/nats"
	"github.com/Kimkangyeon-17/teskflow/internal/adapters/oauth"
	repo "github.com/Kimkangyeon-17/teskflow/internal/adapters/postgres"
	"github.com/Kimkangyeon-17/teskflow/internal/domain"
	"github.com/Kimkangyeon-17/teskflow/internal/usecase"
	pkglog "github.com/Kimkangyeon-17/teskflow/pkg/log"
)

type App struct {
	cfg      *config.Config
	logger   pkglog.Logger
	db       *gorm.DB
	natsConn *nats.Conn
	echo     *echo.Echo
}

func New(ctx context.Context) (*App, error) {
	cfg := config.MustLoad()
	appLogger := pkglog.New(cfg.AppName, cfg.AppEnv)

	db, err := gorm.Open(postgres.Open(buildDSN(cfg)), &gorm.Config{
		Logger:         loggerForGorm(cfg),
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
	})
	if err != nil {
		return nil, err
	}
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.UserProfile{}, &domain.VerificationToken{}, &domain.RefreshToken{}); err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		log.Printf("nats connect failed: %v", err)
	}

	users := repo.NewUserRepository(db)
	profiles := repo.NewProfileRepository(db)
	tokens := repo.NewVerificationTokenRepository(db)
	sessions := repo.NewRefreshTokenRepository(db)

	notifier := mailer.NewHTTPClient(cfg.MailGatewayURL, cfg.MailFrom, 5*time.Second)
	idp := oauth.NewHTTPClient(cfg.OAuthGatewayURL, 5*time.Second)
	var events natsadapter.EventPublisher
	if nc != nil {
		events = natsadapter.NewEventPublisher(nc, cfg.NATSEventsSubject)
	}

	signer, err := usecase.NewJWTSigner(cfg)
	if err != nil {
		return nil, err
	}

	verification := usecase.NewVerificationService(cfg, appLogger, tokens, users, notifier, events)
	accounts := usecase.NewAccountService(cfg, appLogger, users, profiles, sessions, verification, events)
	sessionSvc := usecase.NewSessionService(cfg, appLogger, accounts, users, profiles, sessions, idp, events, signer)

	handler := handlers.NewUserHandler(accounts, verification, sessionSvc)
	authMW := authmw.NewAuthMiddleware(signer)
	router := httpadapter.NewRouter(cfg, apiv1.NewRouter(handler, authMW.Handler))

	if nc != nil {
		verifyHandler := natsadapter.NewVerifyHandler(signer)
		_ = verifyHandler.Subscribe(nc, cfg.NATSVerifySubject, cfg.AppName)
	}

	e := echo.New()
	router.Setup(e)

	return &App{cfg: cfg, logger: appLogger, db: db, natsConn: nc, echo: e}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.echo.Shutdown(shutdownCtx)
	}()
	go func() {
		errCh <- a.echo.Start(fmt.Sprintf("%s:%s", a.cfg.HTTPHost, a.cfg.HTTPPort))
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) Close() {
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
}

func loggerForGorm(cfg *config.Config) logger.Interface {
	level := logger.Silent
	switch cfg.AppEnv {
	case "local":
		level = logger.Info
	default:
		level = logger.Warn
	}
	return logger.Default.LogMode(level)
}
