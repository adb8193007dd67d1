package cmd

import (
	"context"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/logger"
	"github.com/spigell/hh-interviewer/internal/prompts"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect and seed interview prompt templates",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active prompt templates from the configured source",
	Run: func(_ *cobra.Command, _ []string) {
		listPrompts()
	},
}

var promptsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Replace the mongo prompts collection with a template set",
	Run: func(cmd *cobra.Command, _ []string) {
		seedPrompts(cmd)
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
	promptsCmd.AddCommand(promptsListCmd, promptsSeedCmd)

	promptsSeedCmd.Flags().StringP("file", "f", "", "yaml file with templates, built-in templates are used when empty")
}

func commandDeps() (*deps, *zap.Logger) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	return newDeps(config, logger), logger
}

func listPrompts() {
	ctx := context.Background()
	d, logger := commandDeps()
	defer d.close(ctx)

	source, err := d.promptProvider(ctx)
	if err != nil {
		logger.Fatal("building the prompt provider", zap.Error(err))
	}

	templates, err := source.List(ctx)
	if err != nil {
		logger.Fatal("listing prompts", zap.Error(err))
	}

	for _, t := range templates {
		logger.Info(t.Name,
			zap.String("description", t.Description),
			zap.String("category", t.Category),
			zap.Int("length", len(t.Text)),
		)
	}
	logger.Info("active prompts", zap.Int("count", len(templates)))
}

func seedPrompts(cmd *cobra.Command) {
	ctx := context.Background()
	d, logger := commandDeps()
	defer d.close(ctx)

	var (
		templates []prompts.Template
		err       error
	)
	if file := strings.TrimSpace(cmd.Flag("file").Value.String()); file != "" {
		templates, err = prompts.LoadFile(file)
	} else {
		templates, err = prompts.Defaults()
	}
	if err != nil {
		logger.Fatal("loading templates", zap.Error(err))
	}

	provider, err := d.mongoPrompts(ctx)
	if err != nil {
		logger.Fatal("connecting to the prompts collection", zap.Error(err))
	}

	inserted, err := provider.Seed(ctx, templates)
	if err != nil {
		logger.Fatal("seeding prompts", zap.Error(err))
	}
	logger.Info("seeded prompts", zap.Int("count", inserted))
}
