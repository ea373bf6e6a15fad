package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"shopping-assistant/handler"
	"shopping-assistant/internal/app"
	"shopping-assistant/internal/config"
	"shopping-assistant/internal/integrations/paramstore"
	"shopping-assistant/internal/repository"
)

func main() {
	ctx := context.Background()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(config.Lambda)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal("failed to load AWS config", zap.Error(err))
	}

	// ---- Clients ----
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg), paramstore.WithTTL(cfg.ParamCacheTTL))
	if err != nil {
		logger.Fatal("failed to create SSM client", zap.Error(err))
	}
	sessions, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.SessionTable)
	if err != nil {
		logger.Fatal("failed to create session store", zap.Error(err))
	}

	a, err := app.New(cfg, app.Deps{Params: params, Sessions: sessions, Logger: logger})
	if err != nil {
		logger.Fatal("failed to wire assistant", zap.Error(err))
	}
	defer a.Backend.Close()

	// ---- Handler ----
	h, err := handler.NewHandler(a.Chat, handler.WithLogger(logger.Named("handler")))
	if err != nil {
		logger.Fatal("failed to create handler", zap.Error(err))
	}

	lambda.Start(h.Handle)
}
