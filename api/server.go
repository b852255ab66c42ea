package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/OldStager01/car-price-predictor/api/handlers"
	"github.com/OldStager01/car-price-predictor/api/middleware"
	"github.com/OldStager01/car-price-predictor/api/websocket"
	_ "github.com/OldStager01/car-price-predictor/docs"
	"github.com/OldStager01/car-price-predictor/internal/auth"
	"github.com/OldStager01/car-price-predictor/internal/service"
	"github.com/OldStager01/car-price-predictor/pkg/config"
	"github.com/OldStager01/car-price-predictor/pkg/database"
	"github.com/OldStager01/car-price-predictor/pkg/database/queries"
	"github.com/OldStager01/car-price-predictor/pkg/models"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Dependencies are the long-lived components the HTTP surface is built on.
type Dependencies struct {
	Predictions *service.PredictionService
	// DB is nil when persistence is disabled; history and token routes
	// then answer 404.
	DB     *database.DB
	Auth   *auth.Service
	Events <-chan *models.Event
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     *config.Config
	deps       Dependencies
	wsHub      *websocket.Hub
	wsBridge   *websocket.EventBridge
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if cfg.App.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	s := &Server{
		router: gin.New(),
		config: cfg,
		deps:   deps,
		wsHub:  websocket.NewHub(&cfg.WebSocket),
	}

	s.setupMiddleware()
	s.setupRoutes()

	go s.wsHub.Run()

	if deps.Events != nil {
		s.wsBridge = websocket.NewEventBridge(s.wsHub, deps.Events)
		s.wsBridge.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORS(middleware.CORSFromConfig(s.config.API.CORS)))
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.RequestSizeLimit(s.config.API.MaxBodyBytes))
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.TraceID())

	rateLimiter := middleware.NewRateLimiter(s.config.API.RateLimit, time.Minute)
	s.router.Use(middleware.RateLimit(rateLimiter))
}

func (s *Server) setupRoutes() {
	var (
		dbHealth handlers.HealthChecker
		brands   handlers.BrandLister
		runs     handlers.RunReader
		clients  handlers.ClientStore
	)
	if s.deps.DB != nil {
		dbHealth = s.deps.DB
		brands = queries.NewBrandRepository(s.deps.DB.DB)
		runs = queries.NewPredictionRepository(s.deps.DB.DB)
		clients = queries.NewClientRepository(s.deps.DB.DB)
	}

	healthHandler := handlers.NewHealthHandler(dbHealth, s.deps.Predictions)
	catalogHandler := handlers.NewCatalogHandler(brands, s.config.Catalog.Brands, s.deps.Predictions.DefaultHorizon())
	predictionHandler := handlers.NewPredictionHandler(s.deps.Predictions)
	historyHandler := handlers.NewHistoryHandler(runs, s.config.API.DefaultLimit, s.config.API.MaxLimit)

	// Public routes
	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)
	s.router.GET("/catalog", catalogHandler.Get)
	s.router.POST("/predictions", predictionHandler.Predict)
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Auth routes
	if clients != nil {
		authHandler := handlers.NewAuthHandler(clients, s.deps.Auth)
		s.router.POST("/auth/token", middleware.TokenRateLimiter(), authHandler.Token)
	}

	// WebSocket route
	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))

	endpointLimits := middleware.NewEndpointRateLimiter()
	endpointLimits.AddEndpoint("/predictions/batch", 10, time.Minute)

	// Protected routes
	protected := s.router.Group("/")
	protected.Use(middleware.JWTAuth(s.deps.Auth))
	protected.Use(endpointLimits.Middleware())
	{
		protected.POST("/predictions/batch", predictionHandler.PredictBatch)
		protected.GET("/predictions/recent", historyHandler.Recent)
		protected.GET("/predictions/:id", historyHandler.Get)
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.API.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.API.ReadTimeout,
		WriteTimeout: s.config.API.WriteTimeout,
		IdleTimeout:  s.config.API.IdleTimeout,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop the event bridge first
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}
	s.wsHub.Stop()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}
