package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shopping-assistant/internal/app"
	"shopping-assistant/internal/config"
	"shopping-assistant/internal/integrations/paramstore"
	"shopping-assistant/internal/repository"
	"shopping-assistant/internal/usecase"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shopctl",
		Short:         "Shopping assistant command line",
		Long:          "Run shopping assistant turns and inspect backend health locally",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return loadEnv(envFile)
		},
	}
	root.PersistentFlags().String("env-file", ".env", "Environment file to load before reading settings")
	root.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level")

	root.AddCommand(newChatCmd(), newBreakerCmd())
	return root
}

// loadEnv loads path into the environment. A missing file is not an error;
// variables already set win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

// buildApp wires the assistant against AWS. Sessions live in DynamoDB when
// SESSION_TABLE is set and in memory otherwise.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg), paramstore.WithTTL(cfg.ParamCacheTTL))
	if err != nil {
		return nil, err
	}

	var sessions usecase.SessionStore = repository.NewMemory()
	if cfg.SessionTable != "" {
		sessions, err = repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.SessionTable)
		if err != nil {
			return nil, err
		}
	}
	return app.New(cfg, app.Deps{Params: params, Sessions: sessions, Logger: logger})
}
