package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-async-orderflow/internal/aws"
	"github.com/imrishuroy/go-async-orderflow/internal/config"
	"github.com/imrishuroy/go-async-orderflow/internal/deadletter"
	"github.com/imrishuroy/go-async-orderflow/internal/logging"
	"github.com/imrishuroy/go-async-orderflow/internal/queue"
)

// peekVisibility hides peeked messages only briefly so a later peek or redrive sees them again.
const peekVisibility = 5 * time.Second

const usage = `usage: dlq <command> [flags]

commands:
  peek     list dead-lettered order messages
  redrive  move dead-lettered messages back to the orders queue
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := checkQueues(os.Args[1], cfg.Queue); err != nil {
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

	inspector := deadletter.NewInspector(
		queue.NewSQSSource(clients.SQS, cfg.Queue.DLQURL, 0, peekVisibility),
		aws.NewPublisher(clients.SQS, cfg.Queue.QueueURL),
		logger,
	)

	if err := run(ctx, inspector, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		logger.Fatal("dlq command failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

// checkQueues fails before anything is read from the dead-letter queue, so a
// misconfigured redrive never hides messages it cannot send.
func checkQueues(cmd string, q config.QueueConfig) error {
	if q.DLQURL == "" {
		return fmt.Errorf("orders_dlq_url is required")
	}
	if cmd == "redrive" && q.QueueURL == "" {
		return fmt.Errorf("orders_queue_url is required for redrive")
	}
	return nil
}

func run(ctx context.Context, in *deadletter.Inspector, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	limit := fs.Int("max", 10, "maximum number of messages to read (1-10)")
	orderID := fs.String("order-id", "", "only redrive messages of this order")

	switch cmd {
	case "peek":
		if err := fs.Parse(args); err != nil {
			return err
		}
		entries, err := in.Peek(ctx, *limit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	case "redrive":
		if err := fs.Parse(args); err != nil {
			return err
		}
		moved, err := in.Redrive(ctx, *orderID, *limit)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "redriven: %d\n", moved)
		return err
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}
