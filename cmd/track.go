package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cwbudde/templatetrack/internal/match"
	"github.com/cwbudde/templatetrack/internal/seq"
	"github.com/cwbudde/templatetrack/internal/store"
	"github.com/cwbudde/templatetrack/internal/track"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	framesGlob   string
	templatePath string
	maskPath     string
	radius       int
	threshold    float64
	rate         float64
	outPath      string
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track a template across a frame sequence",
	Long: `Runs sequential template tracking over the frames matched by --frames
and writes the per-frame positions and scores as JSON.`,
	RunE: runTracking,
}

func init() {
	trackCmd.Flags().StringVar(&framesGlob, "frames", "", "Glob matching the frame files, in order (required)")
	trackCmd.Flags().StringVar(&templatePath, "template", "", "Template image path (required)")
	trackCmd.Flags().StringVar(&maskPath, "mask", "", "Optional mask image (white = tracked)")
	trackCmd.Flags().IntVar(&radius, "radius", -1, "Search radius around the previous match (-1 = full frame)")
	trackCmd.Flags().Float64Var(&threshold, "threshold", -1, "Rejection threshold on the match score (-1 = disabled)")
	trackCmd.Flags().Float64Var(&rate, "rate", 1.1, "Window growth factor applied on rejection")
	trackCmd.Flags().StringVar(&outPath, "out", "track.json", "Output JSON path")

	trackCmd.MarkFlagRequired("frames")
	trackCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(trackCmd)
}

func runTracking(cmd *cobra.Command, args []string) error {
	slog.Info("starting tracking", "frames", framesGlob, "template", templatePath,
		"radius", radius, "threshold", threshold, "rate", rate)

	frames, err := seq.Load(framesGlob)
	if err != nil {
		return fmt.Errorf("failed to load frames: %w", err)
	}

	tmpl, err := seq.LoadImage(templatePath)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	cfg := track.DefaultConfig()
	cfg.Radius = radius
	cfg.Threshold = threshold
	cfg.Rate = rate

	if maskPath != "" {
		maskImg, err := seq.LoadImage(maskPath)
		if err != nil {
			return fmt.Errorf("failed to load mask: %w", err)
		}
		cfg.Mask = match.MaskFromImage(maskImg)
	}

	start := time.Now()
	result, err := track.Track(frames, tmpl, cfg)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	stored := store.NewResult(uuid.New().String(), result.X, result.Y, result.D, store.JobConfig{
		FramesPath:   framesGlob,
		TemplatePath: templatePath,
		MaskPath:     maskPath,
		Radius:       radius,
		Threshold:    threshold,
		Rate:         rate,
	})

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	summary := result.Summary()
	fps := float64(summary.Frames) / elapsed.Seconds()

	slog.Info("tracking complete",
		"elapsed", elapsed,
		"frames", summary.Frames,
		"matched", summary.Matched,
		"min_score", summary.MinScore,
		"mean_score", summary.MeanScore,
		"max_score", summary.MaxScore,
		"frames_per_second", fmt.Sprintf("%.1f", fps),
	)

	fmt.Printf("Wrote %s (%d/%d frames matched, scores %.4f..%.4f, mean %.4f)\n",
		outPath, summary.Matched, summary.Frames,
		summary.MinScore, summary.MaxScore, summary.MeanScore)

	return nil
}
