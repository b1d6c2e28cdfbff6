package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/config"
	"github.com/kendall-kelly/atelier-api/controllers"
	"github.com/kendall-kelly/atelier-api/middleware"
	"github.com/kendall-kelly/atelier-api/models"
	"github.com/kendall-kelly/atelier-api/services"
	"github.com/kendall-kelly/atelier-api/utils"
)

func main() {
	log.Println("Starting Atelier API server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(config.GetDB()); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initServices(ctx, cfg); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	go services.NewReconciler(services.GetPaymentService(), cfg.ReconcileInterval).Run(ctx)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(cfg, middleware.EnsureValidToken(cfg)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Server is running on http://localhost:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
	services.GetPaymentService().WaitForNotifications()
	log.Println("Server stopped")
}

// initServices wires the payment processor, notifier, design file storage and payment service
func initServices(ctx context.Context, cfg *config.Config) error {
	if err := services.InitPaymentProcessor(cfg.MercadoPagoToken, cfg.PaymentGatewayMock); err != nil {
		return fmt.Errorf("payment processor: %w", err)
	}

	notifier, err := services.InitNotifier(ctx, cfg)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	if cfg.UsesS3() {
		store, err := services.NewS3Store(ctx, cfg)
		if err != nil {
			return fmt.Errorf("design file storage: %w", err)
		}
		services.InitDesignFileService(services.NewObjectStoreDesignFiles(store))
		log.Printf("[storage] design files stored in S3 bucket=%s", cfg.AWSS3Bucket)
	} else {
		services.InitDesignFileService(services.NewLocalDesignFiles(utils.UploadDir))
		log.Printf("[storage] AWS_S3_BUCKET not set, design files stored in %s", utils.UploadDir)
	}

	services.InitPaymentService(config.GetDB(), services.GetPaymentProcessor(), notifier, cfg.PlatformFeeRate)
	return nil
}

// setupRouter builds the API. auth validates the bearer token and sets the caller's subject.
func setupRouter(cfg *config.Config, auth gin.HandlerFunc) *gin.Engine {
	router := gin.Default()

	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/health", healthCheck)
	v1.GET("/database/status", databaseStatus)
	controllers.RegisterRoutes(v1, auth)

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Atelier API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Database is not connected",
			},
		})
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	tables, err := db.Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
