package ffmpeg

import (
	"fmt"
	"strconv"

	"github.com/floostack/transcoder/ffmpeg"
)

// ProbeDuration uses ffprobe to extract the duration (in seconds) of the
// media file at the path provided. Used to clamp requested trim windows to
// the real length of the downloaded media.
func ProbeDuration(path string, config *Config) (float64, error) {
	cfg := ffmpeg.Config{
		FfmpegBinPath:  config.FfmpegBinPath,
		FfprobeBinPath: config.FfprobeBinPath,
	}

	metadata, err := ffmpeg.New(&cfg).Input(path).GetMetadata()
	if err != nil {
		return 0, fmt.Errorf("failed to extract file metadata information using ffprobe: %s", err.Error())
	}

	duration, err := strconv.ParseFloat(metadata.GetFormat().GetDuration(), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe reported a non-numeric duration %q for %s", metadata.GetFormat().GetDuration(), path)
	}

	return duration, nil
}
