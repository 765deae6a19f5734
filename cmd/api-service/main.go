package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/internal/api"
	"github.com/choicespecs/user-service-microservice/internal/repository"
	"github.com/choicespecs/user-service-microservice/pkg/config"
	"github.com/choicespecs/user-service-microservice/pkg/postgres"
	"github.com/choicespecs/user-service-microservice/pkg/rabbitmq"

	_ "github.com/choicespecs/user-service-microservice/docs"
)

// @title           User Service API
// @version         1.0
// @description     A RESTful facade over the message-driven user service. Writes are queued as commands on RabbitMQ; reads run against PostgreSQL directly.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting api-service")

	cfg := config.LoadForService("API")

	db, err := postgres.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, "api", logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	rmqConn, err := rabbitmq.Connect(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rmqConn.Close()

	publisher, err := rabbitmq.NewPublisher(rmqConn, logger)
	if err != nil {
		logger.Fatal("failed to create publisher", zap.Error(err))
	}
	defer publisher.Close()

	repo := repository.New(db, logger)
	handler := api.NewUserHandler(repo, publisher, cfg.CommandQueue, logger)
	router := api.NewRouter(handler)

	srv := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		logger.Info("listening", zap.String("port", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}
