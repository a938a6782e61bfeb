package cli

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"supportdesk_back/agentconfig"
	"supportdesk_back/authorization"
	"supportdesk_back/cache"
	"supportdesk_back/config"
	"supportdesk_back/dashboard"
	"supportdesk_back/database"
	"supportdesk_back/knowledge"
	"supportdesk_back/llm"
	"supportdesk_back/logging"
	"supportdesk_back/metrics"
	"supportdesk_back/support"
)

// openDatabase connects and migrates every table.
func openDatabase() (*gorm.DB, error) {
	db, err := database.OpenFromEnv()
	if err != nil {
		return nil, err
	}
	for _, migrate := range []func(*gorm.DB) error{
		authorization.AutoMigrate,
		knowledge.AutoMigrate,
		agentconfig.AutoMigrate,
		support.AutoMigrate,
	} {
		if err := migrate(db); err != nil {
			closeDatabase(db)
			return nil, err
		}
	}
	return db, nil
}

func closeDatabase(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// configStore is the Redis-fronted config store. Redis is optional; a
// failed connection only disables the cache.
func configStore(ctx context.Context, db *gorm.DB) (*agentconfig.CachedStore, *redis.Client) {
	client, err := cache.NewRedisClientFromEnv(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, agent config cache disabled")
		client = nil
	}
	return agentconfig.NewCachedStore(agentconfig.NewGormStore(db), client), client
}

// server holds the components behind the HTTP API.
type server struct {
	db        *gorm.DB
	redis     *redis.Client
	metrics   *metrics.Metrics
	auth      *authorization.Module
	knowledge *knowledge.Service
	configs   agentconfig.Store
	support   *support.Service
	dashboard *dashboard.Service
}

func newServer(ctx context.Context) (*server, error) {
	db, err := openDatabase()
	if err != nil {
		return nil, err
	}
	s := &server{db: db, metrics: metrics.New(prometheus.NewRegistry())}
	if err := s.wire(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *server) wire(ctx context.Context) error {
	var err error
	if s.auth, err = authorization.NewModuleFromEnv(s.db); err != nil {
		return err
	}

	extractor := knowledge.NewExtractor()
	s.knowledge, err = knowledge.NewServiceFromEnv(s.db, knowledge.Deps{Extractor: extractor, Metrics: s.metrics})
	if err != nil {
		return err
	}

	s.configs, s.redis = configStore(ctx, s.db)

	completer, err := llm.NewChatClientFromEnv()
	if err != nil {
		return err
	}
	s.support = support.NewService(
		s.configs,
		s.knowledge.Retriever(knowledge.ThresholdsFromEnv()),
		completer,
		support.NewGormEventSink(s.db),
		support.OptionsFromEnv(s.metrics),
	)

	vectorIndex := config.String("QDRANT_URL", "") != ""
	s.dashboard = dashboard.NewService(s.db, func() dashboard.Status {
		return dashboard.Status{
			KnowledgeEngine: s.knowledge != nil,
			PDFExtraction:   extractor.PDFAvailable(),
			VectorIndex:     vectorIndex,
		}
	})
	return nil
}

func (s *server) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	closeDatabase(s.db)
}

// router mounts every HTTP surface under /api.
func (s *server) router() *gin.Engine {
	if config.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(), cors.New(corsConfig()))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := router.Group("/api")
	guard := s.auth.Guard()
	s.auth.RegisterRoutes(api)
	knowledge.NewHandlerFromEnv(s.knowledge).RegisterRoutes(api, guard)
	agentconfig.NewHandler(s.configs).RegisterRoutes(api, guard)
	support.NewHandler(s.support).RegisterRoutes(api, guard)
	dashboard.NewHandler(s.dashboard).RegisterRoutes(api, guard)
	return router
}

// corsConfig allows CORS_ALLOW_ORIGINS, or every origin when unset.
func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", authorization.APIKeyHeader, knowledge.CronHeader)
	for _, origin := range strings.Split(config.String("CORS_ALLOW_ORIGINS", ""), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, trimmed)
		}
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	}
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

func listenAddr(port string) string {
	if port == "" {
		port = config.String("PORT", "8080")
	}
	if strings.Contains(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
