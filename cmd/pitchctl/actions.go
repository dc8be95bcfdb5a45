package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"pitchcoach/internal/coach"
	"pitchcoach/pkg/model"

	"github.com/spf13/cobra"
)

// invoke runs req and prints its payload. A terminal failure is reported with
// the user-facing message and fails the command.
func invoke(cmd *cobra.Command, opts *options, req coach.Request) error {
	inv, err := newInvoker(cmd.Context(), opts.configPath)
	if err != nil {
		return err
	}

	res, err := inv.Invoke(cmd.Context(), req)
	if err != nil {
		var failure *coach.TerminalFailure
		if errors.As(err, &failure) {
			fmt.Fprintln(cmd.ErrOrStderr(), failure.UserMessage())
			return fmt.Errorf("%s failed after %d attempt(s): %s", failure.Kind, failure.Attempts, failure.Reason)
		}
		return err
	}

	out := cmd.OutOrStdout()
	switch res.Kind {
	case coach.KindTranscribe:
		fmt.Fprintln(out, res.Transcript)
	case coach.KindTips:
		fmt.Fprintln(out, res.Tips)
	case coach.KindOptimize:
		fmt.Fprintln(out, res.Script)
	case coach.KindScore:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Score)
	}
	return nil
}

func newTranscribeCmd(opts *options) *cobra.Command {
	var modelName string

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a recorded pitch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			return invoke(cmd, opts, coach.TranscribeRequest(model.Audio{
				Data:        data,
				Filename:    filepath.Base(args[0]),
				ContentType: contentType(args[0]),
				Model:       modelName,
			}))
		},
	}
	cmd.Flags().StringVar(&modelName, "model", "", "override the transcription model")
	return cmd
}

func newTipsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tips [transcript-file]",
		Short: "Suggest improvements for a transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return invoke(cmd, opts, coach.TipsRequest(text))
		},
	}
}

func newOptimizeCmd(opts *options) *cobra.Command {
	var tipsPath string

	cmd := &cobra.Command{
		Use:   "optimize [transcript-file]",
		Short: "Rewrite a transcript using previously generated tips",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			var tips string
			if tipsPath != "" {
				data, err := os.ReadFile(tipsPath)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", tipsPath, err)
				}
				tips = string(data)
			}
			return invoke(cmd, opts, coach.OptimizeRequest(text, tips))
		},
	}
	cmd.Flags().StringVar(&tipsPath, "tips", "", "file with the tips HTML to apply")
	return cmd
}

func newScoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "score [transcript-file]",
		Short: "Rate a transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return invoke(cmd, opts, coach.ScoreRequest(text))
		},
	}
}

var audioTypes = map[string]string{
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := audioTypes[ext]; ok {
		return ct
	}
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
