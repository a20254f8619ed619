package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/brokerage"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/config"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/database"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/holdings"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/metrics"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/orders"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/portfolio"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/venue"
	"github.com/punkice3407/AllYouNeedIsWheel/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Prices go out as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// main initializes and runs the wheel API server with graceful shutdown support
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize services and handlers
	orderService := orders.NewService(db, venue.NewPaperVenue(venue.DefaultPaperConfig))
	orderHandlers := orders.NewGinHandlers(orderService)

	holdingsCache := holdings.New(brokerage.NewClient(cfg.SnapTrade), cfg.Holdings())
	portfolioService := portfolio.NewService(holdingsCache)
	portfolioHandlers := portfolio.NewGinHandlers(portfolioService)

	// Reconcile processing orders in the background when CHECK_INTERVAL is set
	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	defer pollerCancel()
	if cfg.CheckInterval > 0 {
		go orders.NewPoller(orderService, cfg.CheckInterval).Start(pollerCtx)
	}

	// Initialize router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, orderHandlers, portfolioHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		zlog.Info().Str("port", cfg.Port).Str("db_path", cfg.DBPath).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")
	pollerCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// - Options routes: the order ledger, execution and rollovers
// - Portfolio routes: holdings derived views
// - Health and metrics for operators
func setupRoutes(
	router *gin.Engine,
	orderHandlers *orders.GinHandlers,
	portfolioHandlers *portfolio.GinHandlers,
) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	{
		options := api.Group("/options")
		{
			options.POST("/order", orderHandlers.SaveOrderHandler())
			options.GET("/pending-orders", orderHandlers.PendingOrdersHandler())
			options.GET("/order/:id", orderHandlers.GetOrderHandler())
			options.DELETE("/order/:id", orderHandlers.DeleteOrderHandler())
			options.PUT("/order/:id/quantity", orderHandlers.UpdateQuantityHandler())
			options.POST("/execute/:id", orderHandlers.ExecuteOrderHandler())
			options.POST("/cancel/:id", orderHandlers.CancelOrderHandler())
			options.POST("/check-orders", orderHandlers.CheckOrdersHandler())
			options.POST("/rollover", orderHandlers.RolloverHandler())
		}

		portfolio := api.Group("/portfolio")
		{
			portfolio.GET("/", portfolioHandlers.SummaryHandler())
			portfolio.GET("/positions", portfolioHandlers.PositionsHandler())
			portfolio.GET("/weekly-income", portfolioHandlers.WeeklyIncomeHandler())
		}
	}
}
