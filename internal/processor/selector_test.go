package processor

import (
	"testing"

	"github.com/GabrielSantos23/downly/internal/job"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_FormatSelectorFor_Video(t *testing.T) {
	t.Parallel()
	tests := []struct {
		summary  string
		request  ProcessRequest
		expected string
	}{
		{
			summary:  "explicit resolution and bitrate",
			request:  ProcessRequest{SelectedVideoFormat: "720p", SelectedAudioFormat: "128kbps"},
			expected: "bestvideo[height=720]+bestaudio[abr<=138][abr>=118]/best[height=720]/best",
		},
		{
			summary:  "explicit resolution without audio pick",
			request:  ProcessRequest{SelectedVideoFormat: "1080p"},
			expected: "bestvideo[height=1080]+bestaudio/best[height=1080]/best",
		},
		{
			summary:  "quality tier best",
			request:  ProcessRequest{Quality: "best"},
			expected: "best[ext=mp4]/best",
		},
		{
			summary:  "quality tier high",
			request:  ProcessRequest{Quality: "high"},
			expected: "best[height<=1080][ext=mp4]/best[height<=1080]",
		},
		{
			summary:  "quality tier medium",
			request:  ProcessRequest{Quality: "medium"},
			expected: "best[height<=720][ext=mp4]/best[height<=720]",
		},
		{
			summary:  "quality tier low",
			request:  ProcessRequest{Quality: "low"},
			expected: "best[height<=480][ext=mp4]/best[height<=480]",
		},
		{
			summary:  "no quality defaults to best",
			request:  ProcessRequest{},
			expected: "best[ext=mp4]/best",
		},
		{
			summary:  "malformed resolution label falls back to quality",
			request:  ProcessRequest{SelectedVideoFormat: "720", Quality: "medium"},
			expected: "best[height<=720][ext=mp4]/best[height<=720]",
		},
	}

	for _, test := range tests {
		t.Run(test.summary, func(t *testing.T) {
			assert.Equal(t, test.expected, formatSelectorFor(job.KindVideo, test.request))
		})
	}
}

func Test_FormatSelectorFor_Audio(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "bestaudio[abr<=138][abr>=118]/bestaudio/best",
		formatSelectorFor(job.KindAudio, ProcessRequest{SelectedAudioFormat: "128kbps"}))
	assert.Equal(t, "bestaudio/best",
		formatSelectorFor(job.KindAudio, ProcessRequest{}))
	assert.Equal(t, "bestaudio/best",
		formatSelectorFor(job.KindAudio, ProcessRequest{SelectedAudioFormat: "loud"}))

	// A video format pick is meaningless for an audio job and must not
	// leak in to the selector.
	assert.Equal(t, "bestaudio/best",
		formatSelectorFor(job.KindAudio, ProcessRequest{SelectedVideoFormat: "720p"}))
}

func Test_ValidateRequest(t *testing.T) {
	t.Parallel()
	validate := validator.New()

	t.Run("valid video request", func(t *testing.T) {
		validated, err := validateRequest(validate, job.KindVideo, ProcessRequest{
			URL:       "https://example.com/watch?v=abc",
			Format:    "mp4",
			Quality:   "high",
			TrimStart: "00:10",
			TrimEnd:   "00:40",
		})
		require.NoError(t, err)
		assert.Equal(t, "mp4", validated.container)
		require.NotNil(t, validated.trim)
		assert.Equal(t, 10, validated.trim.StartSecs)
		assert.Equal(t, 40, validated.trim.EndSecs)
	})

	t.Run("no trim yields nil window", func(t *testing.T) {
		validated, err := validateRequest(validate, job.KindVideo, ProcessRequest{URL: "https://example.com/v", Format: "mp4"})
		require.NoError(t, err)
		assert.Nil(t, validated.trim)
	})

	t.Run("audio container falls back to mp3", func(t *testing.T) {
		validated, err := validateRequest(validate, job.KindAudio, ProcessRequest{URL: "https://example.com/v", Format: "flac"})
		require.NoError(t, err)
		assert.Equal(t, "mp3", validated.container)
	})

	t.Run("rejections", func(t *testing.T) {
		rejected := map[string]ProcessRequest{
			"missing URL":                 {Format: "mp4"},
			"missing format":              {URL: "https://example.com/v"},
			"invalid URL":                 {URL: "notaurl", Format: "mp4"},
			"unknown quality tier":        {URL: "https://example.com/v", Format: "mp4", Quality: "ultra"},
			"unsupported video container": {URL: "https://example.com/v", Format: "exe"},
			"half a trim window":          {URL: "https://example.com/v", Format: "mp4", TrimStart: "00:10"},
			"inverted trim window":        {URL: "https://example.com/v", Format: "mp4", TrimStart: "00:40", TrimEnd: "00:10"},
		}

		for summary, request := range rejected {
			_, err := validateRequest(validate, job.KindVideo, request)
			assert.ErrorIs(t, err, ErrValidation, "%s: request %+v must be rejected", summary, request)
		}
	})
}
