package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-async-orderflow/internal/aws"
	"github.com/imrishuroy/go-async-orderflow/internal/config"
	"github.com/imrishuroy/go-async-orderflow/internal/correlation"
	"github.com/imrishuroy/go-async-orderflow/internal/handlers"
	"github.com/imrishuroy/go-async-orderflow/internal/logging"
	"github.com/imrishuroy/go-async-orderflow/internal/metrics"
	"github.com/imrishuroy/go-async-orderflow/internal/orders"
)

func setupRouter(cfg handlers.HandlerConfig, correlationHeader string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(correlation.Middleware(correlationHeader))

	handlers.RegisterHealthRoute(r)
	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx, aws.Settings{
		Region:           cfg.AWS.Region,
		EndpointOverride: cfg.AWS.EndpointOverride,
	})
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	store, closeStore, err := orders.Open(ctx, clients.DynamoDB, orders.StoreOptions{
		Backend:     cfg.Store.Backend,
		TableName:   cfg.Store.OrdersTable,
		PostgresDSN: cfg.Store.PostgresDSN,
		Migrate:     true,
	})
	if err != nil {
		logger.Fatal("failed to open order store", zap.Error(err))
	}
	defer func() { _ = closeStore() }()

	var recorder metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		recorder = metrics.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, handlers.CreateOrderFunction)
	}

	r := setupRouter(handlers.HandlerConfig{
		Enqueuer: aws.NewPublisher(clients.SQS, cfg.Queue.QueueURL),
		Store:    store,
		Logger:   logger,
		Metrics:  recorder,
	}, cfg.HTTP.CorrelationHeader)

	// RUN_LOCAL serves plain HTTP for development.
	if cfg.RunLocal {
		logger.Info("running local server", zap.String("addr", cfg.HTTP.Addr))
		if err := r.Run(cfg.HTTP.Addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
