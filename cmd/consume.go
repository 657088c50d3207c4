package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/envelope/internal/consumer"
	"firestige.xyz/envelope/internal/ingest"
	"firestige.xyz/envelope/internal/log"
	"firestige.xyz/envelope/internal/metrics"
	"firestige.xyz/envelope/internal/render"
	"firestige.xyz/envelope/pkg/envelope"
)

const shutdownTimeout = 5 * time.Second

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Ingest envelopes from a Kafka topic",
	Long: `Consume envelopes from the Kafka topic in consumer.kafka, parse them with
the configured parser and print every accepted message.

Records that fail to parse are logged and committed. When metrics.enabled is
set, Prometheus metrics are served on metrics.listen.

Runs until SIGINT or SIGTERM.

Examples:
  envelope consume -c envelope.yml
  ENVELOPE_CONSUMER_KAFKA_BROKERS=localhost:9092 ENVELOPE_CONSUMER_KAFKA_TOPIC=orders envelope consume -o none`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateConsumer(); err != nil {
			return err
		}

		reg := typeRegistry()
		var handler ingest.Handler
		if consumeOutput != "none" {
			format, err := render.ParseFormat(consumeOutput)
			if err != nil {
				return err
			}
			handler = printHandler(cmd.OutOrStdout(), format, reg)
		}

		in, err := ingest.FromConfig(cfg, reg, handler,
			ingest.WithSource(cfg.Consumer.Kafka.Topic))
		if err != nil {
			return err
		}
		c, err := consumer.NewKafkaConsumer(cfg.Consumer.Kafka, in)
		if err != nil {
			return fmt.Errorf("failed to create kafka consumer: %w", err)
		}

		var srv service
		if cfg.Metrics.Enabled {
			srv = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runConsume(ctx, c, srv)
	},
}

var consumeOutput string

func init() {
	consumeCmd.Flags().StringVarP(&consumeOutput, "output", "o", string(render.FormatJSON),
		"output format for accepted messages (json, yaml, text, none)")
}

// runner is a long-running consumer.
type runner interface {
	Start(ctx context.Context) error
	Stop() error
}

// service is a background server such as the metrics endpoint.
type service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// runConsume starts srv (if any), runs c until ctx is done or c returns,
// then shuts both down.
func runConsume(ctx context.Context, c runner, srv service) error {
	logger := log.GetLogger()

	if srv != nil {
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.WithError(err).Warn("metrics server shutdown failed")
			}
		}()
	}

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		logger.Info("shutting down consumer")
		err = <-done
	}
	if stopErr := c.Stop(); stopErr != nil {
		logger.WithError(stopErr).Warn("consumer shutdown failed")
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printHandler renders every accepted message to w, one at a time.
func printHandler(w io.Writer, format render.Format, namer envelope.TypeNamer) ingest.Handler {
	var mu sync.Mutex
	return ingest.HandlerFunc(func(_ context.Context, msg *envelope.Message) error {
		mu.Lock()
		defer mu.Unlock()
		return render.Render(w, msg, format, namer)
	})
}
