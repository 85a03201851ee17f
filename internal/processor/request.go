package processor

import (
	"errors"
	"fmt"

	"github.com/GabrielSantos23/downly/internal/ffmpeg"
	"github.com/GabrielSantos23/downly/internal/job"
	"github.com/GabrielSantos23/downly/internal/media"
	"github.com/GabrielSantos23/downly/internal/resolver"
	"github.com/go-playground/validator/v10"
)

// ErrValidation indicates a structurally invalid process request. These
// are rejected synchronously by Submit; no job record is ever created for
// them.
var ErrValidation = errors.New("validation failed")

// ProcessRequest is the payload of a video/audio process submission.
// Validation happens in two passes: struct-level tags for shape, then the
// semantic checks (URL, trim window, container) in validateRequest.
type ProcessRequest struct {
	URL                 string `json:"url" validate:"required"`
	Format              string `json:"format" validate:"required,alphanum"`
	Quality             string `json:"quality" validate:"omitempty,oneof=best high medium low"`
	TrimStart           string `json:"trim_start"`
	TrimEnd             string `json:"trim_end"`
	SelectedVideoFormat string `json:"selected_video_format"`
	SelectedAudioFormat string `json:"selected_audio_format"`
}

// validatedRequest is the result of successfully validating a
// ProcessRequest: the normalized inputs a worker needs to run the job.
type validatedRequest struct {
	kind      job.Kind
	request   ProcessRequest
	trim      *media.TrimWindow
	container string
}

// validateRequest performs the synchronous validation of a submission.
// Anything wrong here surfaces to the submitter as a validation error
// before a job is created.
func validateRequest(validate *validator.Validate, kind job.Kind, request ProcessRequest) (*validatedRequest, error) {
	if err := validate.Struct(request); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := resolver.ValidateURL(request.URL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	trim, err := media.ParseTrimWindow(request.TrimStart, request.TrimEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	container := request.Format
	switch kind {
	case job.KindVideo:
		if !ffmpeg.IsSupportedVideoContainer(container) {
			return nil, fmt.Errorf("%w: unsupported video container %q", ErrValidation, container)
		}
	case job.KindAudio:
		// Unsupported audio containers fall back to mp3 rather than
		// rejecting the request.
		if !ffmpeg.IsSupportedAudioContainer(container) {
			container = "mp3"
		}
	default:
		return nil, fmt.Errorf("%w: unknown job kind %q", ErrValidation, kind)
	}

	return &validatedRequest{
		kind:      kind,
		request:   request,
		trim:      trim,
		container: container,
	}, nil
}
