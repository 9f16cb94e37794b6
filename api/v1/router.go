package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"audit-portal/portal-backend/internal/ai"
	"audit-portal/portal-backend/internal/auth"
	"audit-portal/portal-backend/internal/config"
	"audit-portal/portal-backend/internal/events"
	"audit-portal/portal-backend/internal/notifications"
	"audit-portal/portal-backend/internal/projects"
	"audit-portal/portal-backend/internal/realtime"
	"audit-portal/portal-backend/internal/realtime/websocket"
	"audit-portal/portal-backend/internal/reports"
	"audit-portal/portal-backend/internal/search"
	"audit-portal/portal-backend/internal/settings"
	"audit-portal/portal-backend/internal/weeks"
	"audit-portal/portal-backend/pkg/security"
	"audit-portal/portal-backend/pkg/storage"
)

// brokerBuffer is the number of changes a slow subscriber may lag behind
const brokerBuffer = 256

// Dependencies are the connections and clients the API is assembled from
type Dependencies struct {
	DB        *sqlx.DB
	Gorm      *gorm.DB
	Store     storage.ObjectStore
	Generator ai.Generator
	Indexer   *search.Indexer
	Senders   []notifications.Sender
	Box       *security.Box
	Config    *config.Config
	Logger    *zap.Logger
}

// API holds the wired services and their handlers
type API struct {
	Broker        *realtime.Broker
	Hub           *websocket.Hub
	Projects      *projects.Service
	Weeks         *weeks.Service
	Events        *events.Service
	Settings      *settings.Service
	Notifications *notifications.Service
	Reports       *reports.Service
	ReportCache   *reports.ReportCache
	Indexer       *search.Indexer

	verifier       *auth.Verifier
	allowedOrigins []string
	handlers       []routeRegistrar
	logger         *zap.Logger
}

type routeRegistrar interface {
	RegisterRoutes(router *gin.RouterGroup)
}

// SetupAPI builds every service bottom up. Weeks and projects only meet
// through the weeks repository, which keeps construction acyclic.
func SetupAPI(deps Dependencies) *API {
	cfg, logger := deps.Config, deps.Logger

	broker := realtime.NewBroker(brokerBuffer, logger)
	hub := websocket.NewHub(broker, cfg.Server.AllowedOrigins, logger)
	assistant := ai.NewAssistant(deps.Generator, logger)

	weeksRepo := weeks.NewPostgresRepository(deps.DB)
	projectsService := projects.NewService(
		projects.NewPostgresRepository(deps.DB),
		weeksRepo,
		assistant,
		broker,
		cfg.Server.PublicBaseURL,
		logger,
	)

	settingsService := settings.NewService(settings.NewGormRepository(deps.Gorm), projectsService, deps.Box, logger)

	var senders []notifications.Sender
	if cfg.Notifications.Enabled {
		senders = deps.Senders
	}
	notificationsService := notifications.NewService(
		senders,
		settingsService,
		hub,
		notifications.NewGormDeliveryStore(deps.Gorm),
		logger,
	)

	weeksService := weeks.NewService(weeksRepo, projectsService, broker, notificationsService, logger)

	eventsService := events.NewService(
		events.NewPostgresRepository(deps.DB),
		events.NewStorageProvider(deps.Store, logger),
		weeksService,
		broker,
		deps.Indexer,
		assistant,
		logger,
	)

	cache := reports.NewReportCache(cfg.Reports.CacheTTL.Std())
	reportsService := reports.NewService(weeksService, projectsService, eventsService, assistant, cache, logger)

	return &API{
		Broker:        broker,
		Hub:           hub,
		Projects:      projectsService,
		Weeks:         weeksService,
		Events:        eventsService,
		Settings:      settingsService,
		Notifications: notificationsService,
		Reports:       reportsService,
		ReportCache:   cache,
		Indexer:       deps.Indexer,

		verifier:       auth.NewVerifier(cfg.Security.JWTSecret, cfg.Security.JWTIssuer),
		allowedOrigins: cfg.Server.AllowedOrigins,
		handlers: []routeRegistrar{
			projects.NewHandler(projectsService, logger),
			weeks.NewHandler(weeksService, logger),
			events.NewHandler(eventsService, logger),
			settings.NewHandler(settingsService, logger),
			notifications.NewHandler(notificationsService, logger),
			reports.NewHandler(reportsService, logger),
			search.NewHandler(deps.Indexer, logger),
			ai.NewHandler(assistant, logger),
			websocket.NewHandler(hub, logger),
		},
		logger: logger,
	}
}

// Router returns the gin engine serving /api/v1 and /health
func (a *API) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(a.logger), cors(a.allowedOrigins))

	// Register Routes
	api := router.Group("/api/v1")
	api.Use(auth.Middleware(a.verifier))
	{
		auth.RegisterRoutes(api, auth.NewHandler())
		for _, h := range a.handlers {
			h.RegisterRoutes(api)
		}
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"connections": a.Hub.ConnectionCount(),
			"subscribers": a.Broker.Subscribers(),
		})
	})

	return router
}

// Close stops background work owned by the API. In-flight notifications
// are waited for.
func (a *API) Close() {
	a.Hub.Close()
	a.Broker.Close()
	a.Notifications.Wait()
	a.ReportCache.Stop()
}

func cors(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
