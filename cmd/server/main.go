package main

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/hsn0918/rag/internal/app"
)

func main() {
	bootstrap, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	fxApp := fx.New(
		app.Module,
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()

	if err := fxApp.Start(startCtx); err != nil {
		bootstrap.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}

	<-fxApp.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer stopCancel()

	if err := fxApp.Stop(stopCtx); err != nil {
		bootstrap.Error("application shutdown failed", zap.Error(err))
	}
}
