package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/waritk/agentwidget/agent/contract"
	"github.com/waritk/agentwidget/agent/llm"
	memoryx "github.com/waritk/agentwidget/agent/memory"
	orchestratorx "github.com/waritk/agentwidget/agent/orchestrator"
	sessionx "github.com/waritk/agentwidget/agent/session"
	configx "github.com/waritk/agentwidget/pkg/config"
	crmx "github.com/waritk/agentwidget/pkg/crm"
	_ "github.com/waritk/agentwidget/pkg/logger/autoload"
	openrouterx "github.com/waritk/agentwidget/pkg/openrouter"
	serverx "github.com/waritk/agentwidget/server"
	storex "github.com/waritk/agentwidget/store"
)

type AppConfig struct {
	MemoryGateway   string        `envconfig:"MEMORY_GATEWAY" split_words:"true" default:"noop"`
	SessionTTL      time.Duration `envconfig:"SESSION_TTL" split_words:"true" default:"0"`
	EvictorInterval time.Duration `envconfig:"EVICTOR_INTERVAL" split_words:"true" default:"1m"`
	CRMEnabled      bool          `envconfig:"CRM_ENABLED" split_words:"true" default:"false"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"10s"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("APP")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storex.Open(ctx, *configx.MustNew[storex.Config]("POSTGRES"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close postgres")
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("database ready")

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	openRouterClient := openrouterx.NewClient(*openRouterCfg)
	if openRouterClient == nil {
		log.Fatal().Msg("failed to initialize openrouter client")
	}
	generator, err := llm.NewGenerator(openRouterClient, *openRouterCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build generator")
	}

	history := sessionx.NewStore(sessionx.WithTTL(appCfg.SessionTTL))
	history.StartEvictor(ctx, appCfg.EvictorInterval)

	orchestrator, err := orchestratorx.New(
		history,
		generator,
		buildMemoryGateway(appCfg.MemoryGateway, db),
		*configx.MustNew[orchestratorx.Config]("TURN"),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build orchestrator")
	}

	var pusher serverx.ContactPusher
	if appCfg.CRMEnabled {
		crmClient, err := crmx.NewClient(*configx.MustNew[crmx.Config]("CRM"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build crm client")
		}
		pusher = crmClient
	}

	serverCfg := configx.MustNew[serverx.Config]("SERVER")
	srv := serverx.New(db, orchestrator, history, pusher, *serverCfg)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", serverCfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", serverCfg.Port).Msg("starting agentic widget api")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func buildMemoryGateway(kind string, db *storex.Store) contractx.MemoryGateway {
	switch kind {
	case "postgres":
		log.Info().Msg("long-term memory gateway: postgres")
		return memoryx.NewPostgresGateway(db.DB())
	default:
		log.Info().Msg("long-term memory gateway: noop")
		return memoryx.NoopGateway{}
	}
}
