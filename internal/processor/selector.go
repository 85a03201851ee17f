package processor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/GabrielSantos23/downly/internal/job"
)

// formatSelectorFor builds the download tools '-f' selector expression for
// a validated request. Explicitly selected formats (a "720p" resolution
// and/or a "128kbps" bitrate from a prior resolve call) take precedence;
// otherwise the selector falls back to the requested quality tier.
func formatSelectorFor(kind job.Kind, request ProcessRequest) string {
	if kind == job.KindAudio {
		return audioFormatSelector(request.SelectedAudioFormat)
	}

	return videoFormatSelector(request.Quality, request.SelectedVideoFormat, request.SelectedAudioFormat)
}

func videoFormatSelector(quality string, selectedVideo string, selectedAudio string) string {
	if height, ok := parseResolutionLabel(selectedVideo); ok {
		videoSelector := fmt.Sprintf("bestvideo[height=%d]", height)
		audioSelector := "bestaudio"
		if bitrate, ok := parseBitrateLabel(selectedAudio); ok {
			// Audio bitrates reported by the extractor wobble; match a
			// ±10kbps band rather than the exact figure.
			audioSelector = fmt.Sprintf("bestaudio[abr<=%d][abr>=%d]", bitrate+10, bitrate-10)
		}

		return fmt.Sprintf("%s+%s/best[height=%d]/best", videoSelector, audioSelector, height)
	}

	switch quality {
	case "best":
		return "best[ext=mp4]/best"
	case "high":
		return "best[height<=1080][ext=mp4]/best[height<=1080]"
	case "medium":
		return "best[height<=720][ext=mp4]/best[height<=720]"
	case "low":
		return "best[height<=480][ext=mp4]/best[height<=480]"
	}

	return "best[ext=mp4]/best"
}

func audioFormatSelector(selectedAudio string) string {
	if bitrate, ok := parseBitrateLabel(selectedAudio); ok {
		return fmt.Sprintf("bestaudio[abr<=%d][abr>=%d]/bestaudio/best", bitrate+10, bitrate-10)
	}

	return "bestaudio/best"
}

// parseResolutionLabel extracts the height from a resolution label of the
// form "720p".
func parseResolutionLabel(label string) (int, bool) {
	trimmed := strings.TrimSuffix(label, "p")
	if trimmed == label || trimmed == "" {
		return 0, false
	}

	height, err := strconv.Atoi(trimmed)
	if err != nil || height <= 0 {
		return 0, false
	}

	return height, true
}

// parseBitrateLabel extracts the kbps figure from a bitrate label of the
// form "128kbps".
func parseBitrateLabel(label string) (int, bool) {
	trimmed := strings.TrimSuffix(label, "kbps")
	if trimmed == label || trimmed == "" {
		return 0, false
	}

	bitrate, err := strconv.Atoi(trimmed)
	if err != nil || bitrate <= 0 {
		return 0, false
	}

	return bitrate, true
}
