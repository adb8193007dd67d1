package cmd

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/hh-interviewer/internal/interview"
)

const (
	app = "hh-interviewer"
)

type Config struct {
	Session   *SessionConfig    `mapstructure:"session"`
	Mongo     *MongoConfig      `mapstructure:"mongo"`
	Prompts   *PromptsConfig    `mapstructure:"prompts"`
	AI        *AIConfig         `mapstructure:"ai"`
	Usage     *UsageConfig      `mapstructure:"usage"`
	Results   *ResultsConfig    `mapstructure:"results"`
	Interview *interview.Config `mapstructure:"interview"`
}

type SessionConfig struct {
	// Store is one of memory, file or mongo.
	Store string        `mapstructure:"store"`
	TTL   time.Duration `mapstructure:"ttl"`
	Dir   string        `mapstructure:"dir"`
}

type MongoConfig struct {
	URI                           string `mapstructure:"uri"`
	URIFile                       string `mapstructure:"uri-file"`
	Database                      string `mapstructure:"database"`
	SessionsCollection            string `mapstructure:"sessions-collection"`
	PromptsCollection             string `mapstructure:"prompts-collection"`
	ScheduledInterviewsCollection string `mapstructure:"scheduled-interviews-collection"`
	ResultsCollection             string `mapstructure:"results-collection"`
}

type PromptsConfig struct {
	// Source is one of embedded, file or mongo.
	Source string `mapstructure:"source"`
	File   string `mapstructure:"file"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string  `mapstructure:"api-key"`
	APIKeyFile   string  `mapstructure:"api-key-file"`
	Model        string  `mapstructure:"model"`
	MaxRetries   int     `mapstructure:"max-retries"`
	MaxLogLength int     `mapstructure:"max-log-length"`
	Temperature  float64 `mapstructure:"temperature"`
}

type UsageConfig struct {
	// Recorder is one of none, memory or mongo.
	Recorder string `mapstructure:"recorder"`
}

type ResultsConfig struct {
	// Sink is one of none, file or mongo.
	Sink string `mapstructure:"sink"`
	Dir  string `mapstructure:"dir"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "hh-interviewer runs AI driven mock interviews and scores them",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"mongo.uri-file":         "MONGO_URI_FILE",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is hh-interviewer.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	viper.SetDefault("session.store", "memory")
	viper.SetDefault("session.ttl", "2h")
	viper.SetDefault("session.dir", "sessions")

	viper.SetDefault("mongo.database", "interview")
	viper.SetDefault("mongo.sessions-collection", "interview_sessions")
	viper.SetDefault("mongo.prompts-collection", "prompts")
	viper.SetDefault("mongo.scheduled-interviews-collection", "scheduled_interviews")
	viper.SetDefault("mongo.results-collection", "interview_results")

	viper.SetDefault("prompts.source", "embedded")
	viper.SetDefault("prompts.file", "prompts.yaml")

	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 200)

	viper.SetDefault("usage.recorder", "memory")

	viper.SetDefault("results.sink", "none")
	viper.SetDefault("results.dir", "results")

	viper.SetDefault("interview.duration", 30)
}

func initConfig() {
	if versionCmd.CalledAs() != "" {
		return
	}

	// .env is optional, it only feeds GEMINI_API_KEY and MONGO_URI style variables
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit config file must exist, the default one may be absent.
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
