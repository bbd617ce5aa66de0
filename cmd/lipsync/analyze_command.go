package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/normanking/lipsync/internal/animator"
	"github.com/normanking/lipsync/internal/audio"
)

// frameLine is one row of --frames output.
type frameLine struct {
	Tick    uint64             `json:"tick"`
	Time    float64            `json:"time"`
	Viseme  string             `json:"viseme"`
	Class   string             `json:"class"`
	Volume  float64            `json:"volume"`
	Weights map[string]float32 `json:"weights"`
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var frames bool
	var fps, rate int

	cmd := &cobra.Command{
		Use:   "analyze <file.wav | ->",
		Short: "Run lipsync over a WAV file and print the viseme timeline",
		Long: `Run lipsync over a WAV file and print the viseme timeline.

With "-" the input is raw signed 16-bit little-endian mono PCM read from
stdin at --rate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clip, err := loadClip(cmd, args[0], rate)
			if err != nil {
				return err
			}

			cfg := *ctx.config
			if fps > 0 {
				cfg.Stream.FPS = fps
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := animator.New(clip, &cfg, animator.Options{Logger: ctx.logger.Component("analyze")})
			if err != nil {
				return err
			}

			if !frames {
				return writeJSON(cmd, a.Analyze(nil))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			var encErr error
			a.Analyze(func(out animator.Output) {
				if encErr != nil {
					return
				}
				encErr = enc.Encode(frameLine{
					Tick:    out.Snapshot.Tick,
					Time:    float64(out.Time.Microseconds()) / 1000,
					Viseme:  out.Snapshot.Viseme.String(),
					Class:   string(out.Snapshot.Class),
					Volume:  out.Snapshot.Volume,
					Weights: out.Weights.Map(),
				})
			})
			if encErr != nil {
				return fmt.Errorf("write frames: %w", encErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&frames, "frames", false, "Print one JSON line per frame instead of the timeline")
	cmd.Flags().IntVar(&fps, "fps", 0, "Frame rate override (default: stream.fps)")
	cmd.Flags().IntVar(&rate, "rate", defaultPCMRate, "Sample rate of raw PCM read from stdin")
	return cmd
}

const defaultPCMRate = 16000

// loadClip reads a WAV file, or raw PCM from stdin when path is "-".
func loadClip(cmd *cobra.Command, path string, rate int) (*audio.Clip, error) {
	if path == "-" {
		return audio.DecodePCM(cmd.InOrStdin(), rate)
	}
	return audio.LoadWAV(path)
}
