package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/GabrielSantos23/downly/internal/event"
	"github.com/GabrielSantos23/downly/internal/ffmpeg"
	"github.com/GabrielSantos23/downly/internal/job"
	"github.com/GabrielSantos23/downly/internal/media"
	"github.com/GabrielSantos23/downly/pkg/logger"
	"github.com/floostack/transcoder"
)

// Progress bands for each phase of a job. Within a phase, progress only
// ever moves towards the start of the next band; the store additionally
// guarantees it never moves backwards.
const (
	progressDownloadStart = 5
	progressDownloadEnd   = 45
	progressTrimStart     = 50
	progressTrimEnd       = 58
	progressConvertStart  = 60
	progressConvertEnd    = 95
)

// blindMilestones are the coarse progress steps reported while downloading
// a source whose total size the tool cannot estimate. The job still
// advances visibly, keyed on how many bytes have landed so far.
var blindMilestones = []struct {
	bytes   int64
	percent int
}{
	{256 << 20, 70},
	{32 << 20, 40},
	{0, 10},
}

func blindMilestone(downloaded int64) int {
	for _, milestone := range blindMilestones {
		if downloaded >= milestone.bytes {
			return milestone.percent
		}
	}

	return blindMilestones[len(blindMilestones)-1].percent
}

// runJob executes a single claimed job from Queued to a terminal state.
// All filesystem writes are confined to the jobs own working directory,
// which is removed on every exit path; only the final artifact (in the
// output directory) survives.
func (service *ProcessorService) runJob(ctx context.Context, item *queuedJob) {
	handle := item.handle

	workDir := filepath.Join(service.config.WorkingPath, handle.ID().String())
	if err := os.MkdirAll(workDir, os.ModeDir|os.ModePerm); err != nil {
		service.failJob(handle, "Processing failed", fmt.Errorf("could not create working directory: %w", err))
		return
	}
	defer os.RemoveAll(workDir)

	sourcePath, err := service.download(ctx, handle, item, workDir)
	if err != nil {
		if ctx.Err() != nil {
			service.failJob(handle, "Cancelled", context.Cause(ctx))
			return
		}

		service.failJob(handle, downloadFailureMessage(err), err)
		return
	}

	inputPath, err := service.trim(ctx, handle, item, workDir, sourcePath)
	if err != nil {
		if ctx.Err() != nil {
			service.failJob(handle, "Cancelled", context.Cause(ctx))
			return
		}

		if errors.Is(err, media.ErrInvalidTrimWindow) {
			service.failJob(handle, "Invalid trim window", err)
		} else {
			service.failJob(handle, "Trimming failed", err)
		}
		return
	}

	artifactName, err := service.convert(ctx, handle, item, inputPath)
	if err != nil {
		if ctx.Err() != nil {
			service.failJob(handle, "Cancelled", context.Cause(ctx))
			return
		}

		service.failJob(handle, "Conversion failed", err)
		return
	}

	handle.Complete(artifactName, "Ready for download")
	service.eventBus.Dispatch(event.JOB_COMPLETE, handle.ID())
	log.Emit(logger.SUCCESS, "Job %s completed (artifact %s)\n", handle.ID(), artifactName)
}

// download runs the first phase of a job: fetching the selected stream(s)
// in to the jobs working directory. Byte-level progress from the tool is
// scaled in to the download band; when the tool cannot estimate a total,
// coarse byte-keyed milestones are reported instead.
func (service *ProcessorService) download(ctx context.Context, handle *job.Handle, item *queuedJob, workDir string) (string, error) {
	if err := handle.Transition(job.Downloading, progressDownloadStart, "Starting download..."); err != nil {
		return "", err
	}
	service.eventBus.Dispatch(event.JOB_UPDATE, handle.ID())

	selector := formatSelectorFor(item.kind, item.request)
	outputTemplate := filepath.Join(workDir, "source.%(ext)s")

	lastPercent := progressDownloadStart
	onProgress := func(downloaded int64, total int64) {
		var percent int
		if total > 0 {
			span := progressDownloadEnd - progressDownloadStart
			percent = progressDownloadStart + int(float64(span)*float64(downloaded)/float64(total))
		} else {
			percent = blindMilestone(downloaded)
		}

		if percent > lastPercent {
			lastPercent = percent
			handle.SetProgress(percent, fmt.Sprintf("Downloading... %d%%", percent))
			service.eventBus.Dispatch(event.JOB_PROGRESS, handle.ID())
		}
	}

	audioOnly := item.kind == job.KindAudio
	if err := service.downloader.Download(ctx, item.request.URL, selector, outputTemplate, audioOnly, onProgress); err != nil {
		return "", err
	}

	sourcePath, err := findDownloadedFile(workDir)
	if err != nil {
		return "", err
	}

	handle.SetProgress(progressDownloadEnd, "Download complete, starting processing...")
	service.eventBus.Dispatch(event.JOB_PROGRESS, handle.ID())
	return sourcePath, nil
}

// trim runs the (optional) second phase: cutting the downloaded media to
// the requested window. The requested end point is clamped to the actual
// media duration; a window which is empty after clamping fails the job.
// When no trimming is needed, the downloaded file passes through as-is.
func (service *ProcessorService) trim(ctx context.Context, handle *job.Handle, item *queuedJob, workDir string, sourcePath string) (string, error) {
	if item.trim == nil {
		return sourcePath, nil
	}

	durationSecs := 0
	if duration, err := service.transcoder.ProbeDuration(sourcePath); err == nil {
		durationSecs = int(duration)
	} else {
		// An unprobeable duration disables clamping, not the whole job.
		log.Emit(logger.WARNING, "Unable to probe duration of %s: %v\n", sourcePath, err)
	}

	window, err := item.trim.ClampToDuration(durationSecs)
	if err != nil {
		return "", err
	}

	if window.IsFullMediaFor(durationSecs) {
		return sourcePath, nil
	}

	if err := handle.Transition(job.Trimming, progressTrimStart, fmt.Sprintf("Trimming media to %s...", window)); err != nil {
		return "", err
	}
	service.eventBus.Dispatch(event.JOB_UPDATE, handle.ID())

	trimmedPath := filepath.Join(workDir, "trimmed"+filepath.Ext(sourcePath))
	options := ffmpeg.TrimOptions(media.FormatTimestamp(window.StartSecs), window.DurationSecs())
	if err := service.transcoder.Transcode(ctx, sourcePath, trimmedPath, options, nil); err != nil {
		os.Remove(trimmedPath)
		return "", err
	}

	handle.SetProgress(progressTrimEnd, "Trim complete")
	service.eventBus.Dispatch(event.JOB_PROGRESS, handle.ID())
	return trimmedPath, nil
}

// convert runs the final phase: transcoding/muxing the (possibly trimmed)
// media in to the target container, writing the artifact to the output
// directory. A failed conversion removes the partial output so it can
// never be served.
func (service *ProcessorService) convert(ctx context.Context, handle *job.Handle, item *queuedJob, inputPath string) (string, error) {
	container := item.container
	var options transcoder.Options

	if item.kind == job.KindVideo {
		videoOptions, err := ffmpeg.VideoTargetOptions(container)
		if err != nil {
			return "", err
		}
		options = videoOptions
	} else {
		options, container = ffmpeg.AudioTargetOptions(container)
	}

	if err := handle.Transition(job.Converting, progressConvertStart, fmt.Sprintf("Converting to %s...", container)); err != nil {
		return "", err
	}
	service.eventBus.Dispatch(event.JOB_UPDATE, handle.ID())

	artifactName := fmt.Sprintf("%s.%s", handle.ID(), container)
	outputPath := filepath.Join(service.config.OutputPath, artifactName)

	lastPercent := progressConvertStart
	onProgress := func(progress *ffmpeg.Progress) {
		span := float64(progressConvertEnd - progressConvertStart)
		percent := progressConvertStart + int(span*progress.Progress/100)
		if percent > progressConvertEnd {
			percent = progressConvertEnd
		}

		if percent > lastPercent {
			lastPercent = percent
			handle.SetProgress(percent, fmt.Sprintf("Processing... %d%%", percent))
			service.eventBus.Dispatch(event.JOB_PROGRESS, handle.ID())
		}
	}

	if err := service.transcoder.Transcode(ctx, inputPath, outputPath, options, onProgress); err != nil {
		os.Remove(outputPath)
		return "", err
	}

	return artifactName, nil
}

// findDownloadedFile locates the file the download tool produced inside
// the jobs working directory; the tool substitutes the real extension in
// to the output template so the exact name is not known up front.
func findDownloadedFile(workDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(workDir, "source.*"))
	if err != nil {
		return "", fmt.Errorf("could not scan working directory: %w", err)
	}

	if len(matches) == 0 {
		return "", errors.New("download reported success but produced no file")
	}

	return matches[0], nil
}
