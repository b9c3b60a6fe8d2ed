package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/templatetrack/internal/match"
	"github.com/cwbudde/templatetrack/internal/seq"
	"github.com/cwbudde/templatetrack/internal/store"
	"github.com/cwbudde/templatetrack/internal/track"
)

// runJob executes a tracking job in the background. Per-frame progress is
// broadcast over SSE and written to the job's trace file; the final result
// is persisted through resultStore.
func runJob(ctx context.Context, jm *JobManager, resultStore store.Store, baseDir, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("starting job", "job_id", jobID, "frames", job.Config.FramesPath, "template", job.Config.TemplatePath)

	frames, err := seq.Load(job.Config.FramesPath)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to load frames: %w", err))
		return err
	}

	tmpl, err := seq.LoadImage(job.Config.TemplatePath)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to load template: %w", err))
		return err
	}

	var mask *match.Mask
	if job.Config.MaskPath != "" {
		maskImg, err := seq.LoadImage(job.Config.MaskPath)
		if err != nil {
			markJobFailed(jm, jobID, fmt.Errorf("failed to load mask: %w", err))
			return err
		}
		mask = match.MaskFromImage(maskImg)
	}

	jm.UpdateJob(jobID, func(j *Job) {
		j.Frames = len(frames)
	})

	trace, err := store.NewTraceWriter(baseDir, jobID)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to create trace writer: %w", err))
		return err
	}
	defer trace.Close()

	// Check for cancellation before the long scan starts
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	start := time.Now()
	total := len(frames)

	cfg := track.Config{
		Radius:    job.Config.Radius,
		Threshold: job.Config.Threshold,
		Rate:      job.Config.Rate,
		Mask:      mask,
		Observer: func(u track.FrameUpdate) {
			if err := trace.Write(store.TraceEntry{
				Frame:     u.Frame,
				X:         u.X,
				Y:         u.Y,
				Score:     u.Score,
				Radius:    u.Radius,
				Accepted:  u.Accepted,
				Timestamp: time.Now(),
			}); err != nil {
				slog.Warn("failed to write trace entry", "job_id", jobID, "frame", u.Frame, "error", err)
			}

			done := u.Frame + 1
			jm.UpdateJob(jobID, func(j *Job) {
				j.FramesDone = done
				j.LastScore = u.Score
				if u.Accepted {
					j.Matched++
				}
			})

			elapsed := time.Since(start).Seconds()
			var fps float64
			if elapsed > 0 {
				fps = float64(done) / elapsed
			}
			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:     jobID,
				State:     StateRunning,
				Frame:     u.Frame,
				Frames:    total,
				Score:     u.Score,
				FPS:       fps,
				Timestamp: time.Now(),
			})
		},
	}

	result, err := track.Track(frames, tmpl, cfg)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	elapsed := time.Since(start)

	if err := trace.Flush(); err != nil {
		slog.Warn("failed to flush trace", "job_id", jobID, "error", err)
	}

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	stored := store.NewResult(jobID, result.X, result.Y, result.D, job.Config)
	if err := resultStore.SaveResult(jobID, stored); err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to save result: %w", err))
		return err
	}

	summary := result.Summary()
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.FramesDone = total
		j.Matched = summary.Matched
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	fps := float64(total) / elapsed.Seconds()
	slog.Info("job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"frames", total,
		"matched", summary.Matched,
		"mean_score", summary.MeanScore,
		"frames_per_second", fps,
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Frame:     total - 1,
		Frames:    total,
		Score:     result.D[total-1],
		FPS:       fps,
		Timestamp: time.Now(),
	})

	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("job cancelled", "job_id", jobID)
}
