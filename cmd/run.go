package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/interview"
	"github.com/spigell/hh-interviewer/internal/logger"
	"github.com/spigell/hh-interviewer/internal/usage"
)

const (
	PromptYes    = "Yes"
	PromptNo     = "No"
	endCommand   = "/end"
	answerLabel  = "Your answer (empty or /end to finish)"
	finishLabel  = "Finish the interview?"
	minutesLabel = "%d minutes"
)

var errInterviewOver = errors.New("interview is over")

var finishPrompt = promptui.Select{
	Label: finishLabel,
	Items: []string{PromptYes, PromptNo},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an interactive interview in the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("role", "r", "", "role to interview for, overrides interview.role")
	runCmd.Flags().IntP("duration", "t", 0, "interview length in minutes, overrides interview.duration")
	runCmd.Flags().BoolP("auto-finish", "y", false, "do not ask for confirmation before finishing")

	viper.BindPFlag("interview.role", runCmd.Flags().Lookup("role"))
	viper.BindPFlag("interview.duration", runCmd.Flags().Lookup("duration"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the hh-interviewer", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil || config.Interview == nil {
		logger.Fatal("interview section is required")
	}

	d := newDeps(config, logger)
	defer d.close(ctx)

	svc, recorder, err := d.service(ctx)
	if err != nil {
		logger.Fatal("building the interview service", zap.Error(err))
	}

	autoFinish := cmd.Flag("auto-finish").Value.String() == "true"
	if err := conduct(ctx, svc, config.Interview, autoFinish, logger); err != nil {
		logger.Fatal("interview failed", zap.Error(err))
	}

	if mem, ok := recorder.(*usage.MemoryRecorder); ok {
		if tokens, found := mem.Tokens(config.Interview.ScheduledInterviewID); found {
			logger.Info("token usage", zap.Int("tokens", tokens))
		}
	}
}

func conduct(ctx context.Context, svc *interview.Service, cfg *interview.Config, autoFinish bool, logger *zap.Logger) error {
	started, err := svc.Start(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("start interview: %w", err)
	}
	logger.Info("interview started",
		zap.String("session_id", started.SessionID),
		zap.String("role", cfg.Role),
		zap.Int("duration", cfg.Duration),
	)

	begin := time.Now()
	question := started.Question

	for {
		fmt.Printf("\n%s\n\n", question)

		answer, err := readAnswer(autoFinish)
		if err != nil {
			if errors.Is(err, errInterviewOver) {
				break
			}
			return err
		}

		resp, err := svc.Answer(ctx, interview.AnswerRequest{
			SessionID:            started.SessionID,
			Answer:               answer,
			TimeRemaining:        timeRemaining(begin, cfg.Duration),
			ScheduledInterviewID: cfg.ScheduledInterviewID,
		})
		if err != nil {
			logger.Warn("getting the next question, you can answer again", zap.Error(err))
			continue
		}
		if resp.Question == interview.FallbackQuestion {
			fmt.Printf("\n%s\n", resp.Question)
			return nil
		}
		question = resp.Question
	}

	result, err := svc.End(ctx, interview.EndRequest{
		SessionID:            started.SessionID,
		ScheduledInterviewID: cfg.ScheduledInterviewID,
		CredentialID:         cfg.CredentialID,
		CandidateID:          cfg.CandidateName,
	})
	if err != nil {
		return fmt.Errorf("finish interview: %w", err)
	}

	pretty, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode evaluation: %w", err)
	}
	fmt.Println(string(pretty))
	return nil
}

// readAnswer returns errInterviewOver once the candidate decides to finish.
func readAnswer(autoFinish bool) (string, error) {
	for {
		input := promptui.Prompt{Label: answerLabel}
		answer, err := input.Run()
		switch {
		case errors.Is(err, promptui.ErrInterrupt), errors.Is(err, promptui.ErrEOF):
			return "", errInterviewOver
		case err != nil:
			return "", err
		}

		answer = strings.TrimSpace(answer)
		if answer != "" && !strings.EqualFold(answer, endCommand) {
			return answer, nil
		}

		if autoFinish {
			return "", errInterviewOver
		}
		_, choice, err := finishPrompt.Run()
		if err != nil {
			return "", err
		}
		if choice == PromptYes {
			return "", errInterviewOver
		}
	}
}

// timeRemaining renders the minutes left, never below zero.
func timeRemaining(begin time.Time, duration int) string {
	if duration <= 0 {
		return "unlimited"
	}
	left := duration - int(time.Since(begin).Minutes())
	if left < 0 {
		left = 0
	}
	return fmt.Sprintf(minutesLabel, left)
}
