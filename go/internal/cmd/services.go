package main

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/screentime/go/internal/events"
	"github.com/mcdev12/screentime/go/internal/gateway"
	"github.com/mcdev12/screentime/go/internal/sessions"
	"github.com/mcdev12/screentime/go/internal/users"
	"github.com/mcdev12/screentime/go/internal/web"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Users    *users.App
	Sessions *sessions.App
	Web      *web.Handler
	Gateway  *gateway.Service
}

func setupServices(pool *pgxpool.Pool, publisher events.Publisher, config *Config) (*Services, error) {
	// Database layer → Repository layer → App layer → HTTP layer
	clock := clockwork.NewRealClock()

	// Users
	userRepo := users.NewRepository(pool)
	userApp := users.NewApp(userRepo)

	// Sessions
	sessionRepo := sessions.NewRepository(pool)
	sessionApp := sessions.NewApp(sessionRepo, clock, config.Server.SessionTTL)

	// Pages
	webHandler, err := web.NewHandler(userApp, sessionApp, web.CookieConfig{
		Name:   config.Server.SessionCookie,
		Secure: config.Server.SecureCookies,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create web handler: %w", err)
	}
	if dir := config.Server.WasmDir; dir != "" {
		if err := webHandler.ServeWasm(os.DirFS(dir)); err != nil {
			return nil, fmt.Errorf("failed to serve wasm timer from %s: %w", dir, err)
		}
		log.Info().Str("dir", dir).Msg("serving in-browser usage timer")
	}

	// Hosted page timers
	connCfg := gateway.DefaultConnectionConfig()
	connCfg.PingInterval = config.WebSocket.PingInterval
	connCfg.WriteTimeout = config.WebSocket.WriteTimeout
	connCfg.ReadTimeout = config.WebSocket.ReadTimeout
	connCfg.SendBufferSize = config.WebSocket.SendBufferSize
	connCfg.CheckOrigin = originChecker(config.Server.AllowedOrigins)
	connCfg.Clock = clock
	gatewayService := gateway.NewService(gateway.Config{ConnectionConfig: connCfg}, publisher, web.IdentifyUser)

	log.Debug().Msg("services wired")
	return &Services{
		Users:    userApp,
		Sessions: sessionApp,
		Web:      webHandler,
		Gateway:  gatewayService,
	}, nil
}

func setupPublisher(config *Config) (events.Publisher, error) {
	if config.NATS.URL == "" {
		log.Warn().Msg("NATS_URL not set, usage events will only be logged")
		return events.NewLogPublisher(), nil
	}

	natsCfg := events.DefaultNATSConfig()
	natsCfg.URL = config.NATS.URL
	natsCfg.SubjectPrefix = config.NATS.SubjectPrefix

	publisher, err := events.NewNATSPublisher(natsCfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("nats_url", natsCfg.URL).Msg("publishing usage events to NATS")
	return publisher, nil
}
