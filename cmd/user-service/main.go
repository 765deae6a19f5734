package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/internal/cache"
	"github.com/choicespecs/user-service-microservice/internal/events"
	"github.com/choicespecs/user-service-microservice/internal/messaging"
	"github.com/choicespecs/user-service-microservice/internal/repository"
	"github.com/choicespecs/user-service-microservice/internal/service"
	"github.com/choicespecs/user-service-microservice/pkg/config"
	"github.com/choicespecs/user-service-microservice/pkg/postgres"
	"github.com/choicespecs/user-service-microservice/pkg/rabbitmq"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting user-service")

	cfg := config.LoadForService("USER_SERVICE")

	db, err := postgres.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, "user-service", logger); err != nil {
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

	userCache := cache.Connect(cfg.RedisAddr, logger)

	repo := repository.New(db, logger)
	eventPublisher := events.NewEventPublisher(publisher, logger)
	userService := service.NewUserService(repo, eventPublisher, userCache, logger)
	listener := messaging.NewListener(userService, eventPublisher, logger)

	consumerCfg := rabbitmq.ConsumerConfig{
		QueueName:    cfg.CommandQueue,
		DLQName:      "dlq." + cfg.CommandQueue,
		ConsumerName: "user-service",
	}

	if err := rabbitmq.SetupConsumer(rmqConn, consumerCfg, listener.HandleMessage, logger); err != nil {
		logger.Fatal("failed to setup consumer", zap.Error(err))
	}

	logger.Info("user-service is running, waiting for commands",
		zap.String("queue", cfg.CommandQueue))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down user-service")
}
