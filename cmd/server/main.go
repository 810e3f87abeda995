package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qcom/receipts/internal/config"
	"github.com/qcom/receipts/internal/handlers"
	"github.com/qcom/receipts/internal/metrics"
	"github.com/qcom/receipts/internal/middleware"
	"github.com/qcom/receipts/internal/service"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.WithError(err).Warn("Failed to read .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	checkAppleToken(cfg.Apple.APIToken, logger)

	vendorClient := &http.Client{Timeout: cfg.Vendor.Timeout}
	m := metrics.New(prometheus.DefaultRegisterer)

	validator := service.NewReceiptValidator(
		service.NewAppStoreClient(&cfg.Apple, vendorClient, logger),
		service.NewGoogleTokenProvider(&cfg.Google, vendorClient, logger),
		service.NewPlayClient(&cfg.Google, vendorClient, logger),
		cfg.Google.PackageName,
		m,
		logger,
	)
	receiptHandlers := handlers.NewReceiptHandlers(validator, m, logger)

	router := setupRouter(receiptHandlers, promhttp.Handler(), logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":              cfg.Server.Port,
			"apple_environment": cfg.Apple.Environment,
			"package_name":      cfg.Google.PackageName,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// checkAppleToken warns early about an App Store token Apple will reject.
func checkAppleToken(token string, logger *logrus.Logger) {
	info, err := service.InspectAppleToken(token)
	if err != nil {
		logger.WithError(err).Warn("Could not inspect APPLE_API_TOKEN")
		return
	}

	entry := logger.WithFields(logrus.Fields{
		"key_id":     info.KeyID,
		"expires_at": info.ExpiresAt,
	})
	if info.Expired(time.Now()) {
		entry.Warn("APPLE_API_TOKEN is expired; iOS validations will fail")
		return
	}
	entry.Info("APPLE_API_TOKEN loaded")
}

func setupRouter(
	receiptHandlers *handlers.ReceiptHandlers,
	metricsHandler http.Handler,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	router.Handle("/metrics", metricsHandler).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/receipts/validate", receiptHandlers.ValidateReceipt).Methods("POST", "OPTIONS")

	// Method-agnostic alias kept for existing clients.
	router.HandleFunc("/validateReceipt", receiptHandlers.ValidateReceipt)

	return router
}
