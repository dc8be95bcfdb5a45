package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"pitchcoach/internal/app"
	"pitchcoach/internal/coach"
	"pitchcoach/internal/config"
	"pitchcoach/internal/speechkit"
	"pitchcoach/pkg/logger"

	"github.com/spf13/cobra"
)

// Invoker is the part of coach.Invoker the commands use.
type Invoker interface {
	Invoke(ctx context.Context, req coach.Request) (*coach.Result, error)
}

// newInvoker is replaced in tests.
var newInvoker = func(ctx context.Context, configPath string) (Invoker, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	var uploader speechkit.Uploader
	if cfg.STT.Provider == "speechkit" {
		s3, err := app.NewS3(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		uploader = s3
	}
	return app.NewCoach(cfg, uploader)
}

type options struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "pitchctl",
		Short: "Analyze and improve presentation scripts",
		Long: `pitchctl counts word usage in a script and runs the AI coaching actions
(transcription, tips, an optimized script and a pitch score) against it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				return logger.Init("pitchctl", true)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log retries and backend calls to stderr")

	root.AddCommand(
		newWordsCmd(),
		newTranscribeCmd(opts),
		newTipsCmd(opts),
		newOptimizeCmd(opts),
		newScoreCmd(opts),
	)
	return root
}

// readInput reads the named file, or stdin when no file was given.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(data), nil
}
