package ffmpeg

import (
	"fmt"

	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
)

// VideoContainers lists the target containers accepted for video jobs,
// AudioContainers the same for audio jobs. Requests naming anything else
// are rejected before a job is created (video) or fall back to mp3 (audio,
// matching the behaviour users of the original service relied on).
var (
	VideoContainers = []string{"mp4", "mkv", "webm"}
	AudioContainers = []string{"mp3", "m4a", "ogg", "wav"}
)

func IsSupportedVideoContainer(container string) bool {
	for _, c := range VideoContainers {
		if c == container {
			return true
		}
	}
	return false
}

func IsSupportedAudioContainer(container string) bool {
	for _, c := range AudioContainers {
		if c == container {
			return true
		}
	}
	return false
}

// VideoTargetOptions composes the transcoder options used to mux/transcode
// a downloaded video stream in to the target container.
func VideoTargetOptions(container string) (transcoder.Options, error) {
	overwrite := true

	switch container {
	case "mp4":
		videoCodec := "libx264"
		audioCodec := "aac"
		preset := "fast"
		movFlags := "+faststart"
		return ffmpeg.Options{
			VideoCodec: &videoCodec,
			AudioCodec: &audioCodec,
			Preset:     &preset,
			MovFlags:   &movFlags,
			Overwrite:  &overwrite,
		}, nil
	case "mkv":
		// Matroska accepts the source streams as-is; remux only.
		codecCopy := "copy"
		return ffmpeg.Options{
			VideoCodec: &codecCopy,
			AudioCodec: &codecCopy,
			Overwrite:  &overwrite,
		}, nil
	case "webm":
		videoCodec := "libvpx-vp9"
		audioCodec := "libopus"
		return ffmpeg.Options{
			VideoCodec: &videoCodec,
			AudioCodec: &audioCodec,
			Overwrite:  &overwrite,
		}, nil
	}

	return nil, fmt.Errorf("unsupported video container %q", container)
}

// AudioTargetOptions composes the transcoder options used to extract and
// re-encode the audio stream in to the target container. An unrecognized
// container silently becomes mp3; the normalized container is returned so
// the caller names the output file correctly.
func AudioTargetOptions(container string) (transcoder.Options, string) {
	overwrite := true
	skipVideo := true

	switch container {
	case "m4a":
		audioCodec := "aac"
		audioBitrate := "192k"
		return ffmpeg.Options{
			SkipVideo:    &skipVideo,
			AudioCodec:   &audioCodec,
			AudioBitrate: &audioBitrate,
			Overwrite:    &overwrite,
		}, container
	case "ogg":
		audioCodec := "libvorbis"
		return ffmpeg.Options{
			SkipVideo:  &skipVideo,
			AudioCodec: &audioCodec,
			Overwrite:  &overwrite,
		}, container
	case "wav":
		audioRate := 44100
		audioChannels := 2
		return ffmpeg.Options{
			SkipVideo:     &skipVideo,
			AudioRate:     &audioRate,
			AudioChannels: &audioChannels,
			Overwrite:     &overwrite,
		}, container
	default:
		audioRate := 44100
		audioChannels := 2
		audioBitrate := "192k"
		return ffmpeg.Options{
			SkipVideo:     &skipVideo,
			AudioRate:     &audioRate,
			AudioChannels: &audioChannels,
			AudioBitrate:  &audioBitrate,
			Overwrite:     &overwrite,
		}, "mp3"
	}
}

// TrimOptions composes the transcoder options used to cut the downloaded
// media down to the requested window. The cut is a stream copy: the real
// re-encode happens in the conversion phase.
func TrimOptions(startTimestamp string, durationSecs int) transcoder.Options {
	overwrite := true
	codecCopy := "copy"
	duration := fmt.Sprintf("%d", durationSecs)

	return ffmpeg.Options{
		SeekTime:   &startTimestamp,
		Duration:   &duration,
		VideoCodec: &codecCopy,
		AudioCodec: &codecCopy,
		Overwrite:  &overwrite,
	}
}
