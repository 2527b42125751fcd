package main

import (
	"context"
	"event-scheduler/internal/config"
	"event-scheduler/internal/db"
	"event-scheduler/internal/event"
	"event-scheduler/internal/history"
	"event-scheduler/internal/middleware"
	"event-scheduler/internal/user"
	"event-scheduler/internal/worker"
	"event-scheduler/redis"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Connect to database
	db.ConnectDb()
	defer db.CloseDb()

	// Migrate database schema
	db.Migrate()

	// Seed database with initial data (for development)
	db.SeedData()

	// Initialize Redis
	redis.InitRedis()
	cache := redis.NewCache(redis.RedisClient)

	// Background worker pool for cache population
	pool := worker.NewPool(4, 1000)

	// Initialize repositories
	userRepo := user.NewRepository(db.AppDb)
	ledger := history.NewLedger(db.AppDb)
	eventRepo := event.NewRepository(db.AppDb, ledger)

	// Initialize services
	userService := user.NewService(userRepo)
	eventService := event.NewService(eventRepo, userService, cache, pool)
	historyService := history.NewService(ledger, eventService, eventService)

	// Initialize handlers
	userHandler := user.NewHandler(userService)
	eventHandler := event.NewHandler(eventService)
	historyHandler := history.NewHandler(historyService)

	// Initialize Gin router
	router := gin.Default()
	router.Use(middleware.ErrorHandler())

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}

	if config.AppConfig.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = []string{config.AppConfig.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	// User routes
	router.POST("/register", userHandler.Register)
	router.POST("/login", userHandler.Login)
	router.POST("/refresh", middleware.AuthMiddleWare(), userHandler.Refresh)
	router.DELETE("/logout", middleware.AuthMiddleWare(), userHandler.Logout)
	router.GET("/profile", middleware.AuthMiddleWare(), userHandler.GetProfile)

	// Event routes
	authorized := router.Group("/events", middleware.AuthMiddleWare())
	authorized.POST("", eventHandler.Create)
	authorized.GET("", eventHandler.List)
	// gin can't register a static /batch beside the :id wildcard, so
	// POST /events/batch is dispatched through the param route.
	authorized.POST("/:id", func(c *gin.Context) {
		if c.Param("id") == "batch" {
			eventHandler.CreateBatch(c)
			return
		}
		c.Status(http.StatusNotFound)
	})
	authorized.GET("/:id", eventHandler.Show)
	authorized.PUT("/:id", eventHandler.Update)
	authorized.DELETE("/:id", eventHandler.Delete)

	// Sharing routes
	authorized.POST("/:id/share", eventHandler.Share)
	authorized.GET("/:id/permissions", eventHandler.ListPermissions)
	authorized.PUT("/:id/permissions/:userId", eventHandler.UpdatePermission)
	authorized.DELETE("/:id/permissions/:userId", eventHandler.RemovePermission)

	// History routes
	authorized.GET("/:id/history", historyHandler.ShowHistory)
	authorized.GET("/:id/history/:version", historyHandler.ShowVersion)
	authorized.POST("/:id/rollback/:version", historyHandler.Rollback)
	authorized.GET("/:id/diff/:v1/:v2", historyHandler.ShowDiff)

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Printf("Server listening on port %s", serverPort)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Println("Server shutdown error:", err)
	}

	pool.Shutdown()
	log.Println("Server shutdown complete")
}
