package processor

import (
	"context"

	"github.com/GabrielSantos23/downly/internal/ffmpeg"
	"github.com/floostack/transcoder"
)

// ffmpegTranscoder is the production MediaTranscoder: each call spawns an
// independent external transcoder process.
type ffmpegTranscoder struct {
	config ffmpeg.Config
}

func NewFfmpegTranscoder(config ffmpeg.Config) MediaTranscoder {
	return &ffmpegTranscoder{config: config}
}

func (t *ffmpegTranscoder) Transcode(ctx context.Context, inputPath string, outputPath string, options transcoder.Options, onProgress func(*ffmpeg.Progress)) error {
	return ffmpeg.NewCmd(inputPath, outputPath, &t.config).Run(ctx, options, onProgress)
}

func (t *ffmpegTranscoder) ProbeDuration(path string) (float64, error) {
	return ffmpeg.ProbeDuration(path, &t.config)
}
