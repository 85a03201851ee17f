package artifacts

import (
	"errors"
	"net/http"

	"github.com/GabrielSantos23/downly/internal/artifact"
	"github.com/labstack/echo/v4"
)

type (
	// Store is the slice of the artifact store this controller serves
	// and deletes output files through.
	Store interface {
		Resolve(filename string) (string, error)
		Delete(filename string) error
	}

	Controller struct {
		store Store
	}
)

func New(store Store) *Controller {
	return &Controller{store: store}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/:filename/", controller.download)
	eg.DELETE("/:filename/", controller.delete)
}

// download streams the named artifact as an attachment. Artifacts are
// only servable once their owning job has completed; anything else is a
// 404, never a partial file.
func (controller *Controller) download(ec echo.Context) error {
	filename := ec.Param("filename")
	path, err := controller.store.Resolve(filename)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.Attachment(path, filename)
}

// delete removes the named artifact. The first delete succeeds; deleting
// again reports 404.
func (controller *Controller) delete(ec echo.Context) error {
	if err := controller.store.Delete(ec.Param("filename")); err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.NoContent(http.StatusNoContent)
}
