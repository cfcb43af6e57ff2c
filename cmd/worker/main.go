// Command worker runs the two separable background consumers spec.md
// 4.G and 4.M describe as production deployment options: the ingestion
// chunk-apply consumer and the summarization trigger consumer. It shares
// every provider with cmd/server except the HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytedance/sonic"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/hsn0918/rag/internal/app"
	"github.com/hsn0918/rag/internal/bus"
	"github.com/hsn0918/rag/internal/config"
	"github.com/hsn0918/rag/internal/ingest"
	"github.com/hsn0918/rag/internal/summarize"
)

// runConsumers starts both background consumer loops under fx's
// lifecycle: each runs in its own goroutine bound to a context canceled
// on OnStop, mirroring internal/app's HTTP OnStart/OnStop shape.
func runConsumers(lc fx.Lifecycle, b *bus.Bus, pipeline *ingest.Pipeline, summarizer *summarize.Trigger, cfg *config.Config, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				opts := ingest.ConsumeOptions{
					GroupID: cfg.Bus.GroupID, WorkerCount: cfg.Bus.WorkerCount,
					MaxAttempts: cfg.Bus.MaxAttempts, DeadLetterTopic: cfg.Bus.DeadLetterTopic,
				}
				if err := pipeline.StartConsumer(ctx, b, cfg.Bus.IngestTopic, opts); err != nil && ctx.Err() == nil {
					logger.Error("worker: ingest consumer stopped", zap.Error(err))
				}
			}()
			go func() {
				opts := bus.ConsumeOptions{
					GroupID: cfg.Bus.GroupID, WorkerCount: cfg.Bus.WorkerCount,
					MaxAttempts: cfg.Bus.MaxAttempts, DeadLetterTopic: cfg.Bus.DeadLetterTopic,
				}
				handler := func(ctx context.Context, msg kafka.Message) error {
					var task summarize.Task
					if err := sonic.Unmarshal(msg.Value, &task); err != nil {
						return fmt.Errorf("worker: decode summarize task: %w", err)
					}
					_, err := summarizer.Check(ctx, task.UserID, task.SessionID)
					return err
				}
				if err := b.Consume(ctx, cfg.Bus.SummarizeTopic, opts, handler); err != nil && ctx.Err() == nil {
					logger.Error("worker: summarize consumer stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func main() {
	bootstrap, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	fxApp := fx.New(
		app.InfrastructureModule,
		app.PipelineModule,
		fx.Invoke(runConsumers),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		bootstrap.Error("worker startup failed", zap.Error(err))
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopCtx, stopCancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		bootstrap.Error("worker shutdown failed", zap.Error(err))
	}
}
