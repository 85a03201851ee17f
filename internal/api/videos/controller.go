package videos

import (
	"context"
	"errors"
	"net/http"

	"github.com/GabrielSantos23/downly/internal/job"
	"github.com/GabrielSantos23/downly/internal/media"
	"github.com/GabrielSantos23/downly/internal/processor"
	"github.com/GabrielSantos23/downly/internal/resolver"
	"github.com/GabrielSantos23/downly/internal/ytdlp"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type (
	InfoRequest struct {
		URL string `json:"url"`
	}

	// SubmissionDto is returned by the process endpoints; the task ID it
	// carries is what the client polls against.
	SubmissionDto struct {
		TaskID  uuid.UUID `json:"task_id"`
		Status  string    `json:"status"`
		Message string    `json:"message"`
	}

	ResolverService interface {
		Resolve(ctx context.Context, sourceURL string) (*media.SourceInfo, error)
	}

	SubmitService interface {
		Submit(kind job.Kind, request processor.ProcessRequest) (uuid.UUID, error)
	}

	// Controller defines the source-info and job-submission routes for a
	// single media kind. The video and audio route groups each get their
	// own instance.
	Controller struct {
		kind      job.Kind
		resolver  ResolverService
		submitter SubmitService
	}
)

func New(kind job.Kind, resolverService ResolverService, submitService SubmitService) *Controller {
	return &Controller{kind: kind, resolver: resolverService, submitter: submitService}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/info/", controller.info)
	eg.POST("/process/", controller.process)
}

// info resolves the formats available for the URL in the request body.
func (controller *Controller) info(ec echo.Context) error {
	var request InfoRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "JSON body illegal")
	}

	info, err := controller.resolver.Resolve(ec.Request().Context(), request.URL)
	if err != nil {
		return resolveFailureError(err)
	}

	return ec.JSON(http.StatusOK, info)
}

// process validates the submission and queues a new background job,
// responding as soon as the job exists. The download/transcode work
// happens on a worker goroutine; clients follow it via the task routes.
func (controller *Controller) process(ec echo.Context) error {
	var request processor.ProcessRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "JSON body illegal")
	}

	id, err := controller.submitter.Submit(controller.kind, request)
	if err != nil {
		if errors.Is(err, processor.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, SubmissionDto{
		TaskID:  id,
		Status:  "processing",
		Message: "Task started. Poll the task endpoint for progress.",
	})
}

// resolveFailureError maps resolution failures onto HTTP statuses which
// let a client tell "bad request" apart from "source gone" and "upstream
// flaked".
func resolveFailureError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, resolver.ErrInvalidURL):
		return echo.NewHTTPError(http.StatusBadRequest, "URL is missing or not a valid http(s) URL")
	case errors.Is(err, resolver.ErrNoFormats):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "No downloadable formats found for this URL")
	case errors.Is(err, ytdlp.ErrSourceUnavailable):
		return echo.NewHTTPError(http.StatusNotFound, "Source is unavailable (removed, private, or geo-restricted)")
	case errors.Is(err, ytdlp.ErrNetwork):
		return echo.NewHTTPError(http.StatusBadGateway, "Network failure while contacting the source")
	default:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Unable to extract media information from this URL")
	}
}
