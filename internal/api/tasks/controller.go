package tasks

import (
	"errors"
	"net/http"

	"github.com/GabrielSantos23/downly/internal/job"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type (
	// TaskDto is the snapshot shape served to pollers and pushed over the
	// activity socket. The download URL only appears once the job has
	// completed and its artifact is servable.
	TaskDto struct {
		ID          uuid.UUID `json:"task_id"`
		Kind        string    `json:"kind"`
		Status      string    `json:"status"`
		Progress    int       `json:"progress"`
		Message     string    `json:"message,omitempty"`
		DownloadURL string    `json:"download_url,omitempty"`
		Error       string    `json:"error,omitempty"`
	}

	TaskService interface {
		Task(id uuid.UUID) (job.Job, error)
		CancelTask(id uuid.UUID) error
	}

	Controller struct {
		service TaskService
	}
)

func New(service TaskService) *Controller {
	return &Controller{service: service}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.cancel)
}

func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Task ID is not a valid UUID")
	}

	task, err := controller.service.Task(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	return ec.JSON(http.StatusOK, NewDto(task))
}

// cancel aborts a queued or running task. Cancelling a task that is
// already terminal reports 404, same as an unknown ID.
func (controller *Controller) cancel(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Task ID is not a valid UUID")
	}

	if err := controller.service.CancelTask(id); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ec.NoContent(http.StatusOK)
}

// NewDto creates a TaskDto from a job snapshot.
func NewDto(task job.Job) TaskDto {
	dto := TaskDto{
		ID:       task.ID,
		Kind:     string(task.Kind),
		Status:   task.Status.String(),
		Progress: task.Progress,
		Message:  task.Message,
		Error:    task.ErrorDetail,
	}

	if task.Status == job.Completed && task.ArtifactName != "" {
		dto.DownloadURL = "/downloads/" + task.ArtifactName
	}

	return dto
}
