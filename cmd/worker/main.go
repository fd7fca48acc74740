package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-async-orderflow/internal/aws"
	"github.com/imrishuroy/go-async-orderflow/internal/config"
	"github.com/imrishuroy/go-async-orderflow/internal/logging"
	"github.com/imrishuroy/go-async-orderflow/internal/metrics"
	"github.com/imrishuroy/go-async-orderflow/internal/orders"
	"github.com/imrishuroy/go-async-orderflow/internal/processor"
	"github.com/imrishuroy/go-async-orderflow/internal/queue"
)

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
		recorder = metrics.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, processor.DefaultFunctionName)
	}

	proc := processor.NewProcessor(store, logger, recorder, processor.Config{
		PoisonPolicy: processor.PoisonPolicy(cfg.Worker.PoisonPolicy),
	})

	if !cfg.RunLocal {
		lambda.Start(proc.HandleSQSEvent)
		return
	}

	// LOCAL_SQS_BODY processes one simulated event and exits.
	if body := os.Getenv("LOCAL_SQS_BODY"); body != "" {
		ev := events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local-1", Body: body}}}
		if err := proc.HandleSQSEvent(ctx, ev); err != nil {
			logger.Fatal("local handler error", zap.Error(err))
		}
		return
	}

	if cfg.Queue.QueueURL == "" {
		logger.Fatal("orders_queue_url is required when running locally")
	}
	source := queue.NewSQSSource(clients.SQS, cfg.Queue.QueueURL, cfg.Worker.PollWait, cfg.Worker.VisibilityTimeout)
	poller := processor.NewPoller(source, proc, logger, processor.PollerConfig{
		BatchSize:      cfg.Worker.BatchSize,
		MaxConcurrency: cfg.Worker.MaxConcurrency,
		BatchTimeout:   cfg.Worker.VisibilityTimeout,
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-runCtx.Done()
		poller.Shutdown()
	}()

	if err := poller.Run(runCtx); err != nil {
		logger.Error("poller stopped with error", zap.Error(err))
	}
}
