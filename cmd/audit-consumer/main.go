package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/internal/audit"
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

	logger.Info("starting audit-consumer")

	cfg := config.LoadForService("AUDIT")

	db, err := postgres.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, "audit", logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	rmqConn, err := rabbitmq.Connect(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rmqConn.Close()

	consumer := audit.NewConsumer(db, logger)

	consumerCfg := rabbitmq.ConsumerConfig{
		QueueName:    "audit.user.events",
		DLQName:      "dlq.audit.user.events",
		RoutingKeys:  []string{"user.created", "user.updated", "user.deleted"},
		ConsumerName: "audit-consumer",
	}

	if err := rabbitmq.SetupConsumer(rmqConn, consumerCfg, consumer.HandleMessage, logger); err != nil {
		logger.Fatal("failed to setup consumer", zap.Error(err))
	}

	logger.Info("audit-consumer is running, waiting for events")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down audit-consumer")
}
