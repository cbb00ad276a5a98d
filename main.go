package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dmorgan81/customid/internal/config"
	"github.com/dmorgan81/customid/internal/handler"
	"github.com/dmorgan81/customid/internal/inject"
	"github.com/dmorgan81/customid/internal/log"
	"github.com/dmorgan81/customid/internal/model"
	"github.com/samber/do"
)

func main() {
	cfg, err := config.Load()
	logger := log.New(os.Stderr, log.ParseLevel(cfg.LogLevel))
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := log.NewContext(context.Background(), logger)
	injector := inject.Setup(ctx, cfg)

	// Load the model during cold start; a failure here must keep the
	// function from taking traffic.
	if _, err := do.Invoke[*model.Session](injector); err != nil {
		logger.Error("error during initialization", "error", err)
		os.Exit(1)
	}

	handler := do.MustInvoke[*handler.Handler](injector)
	lambda.StartWithOptions(handler.Handle, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(func() {
		_ = injector.Shutdown()
	}))
}
