package api

import (
	"context"
	"sync"

	"github.com/GabrielSantos23/downly/internal/api/artifacts"
	"github.com/GabrielSantos23/downly/internal/api/tasks"
	"github.com/GabrielSantos23/downly/internal/api/videos"
	"github.com/GabrielSantos23/downly/internal/event"
	"github.com/GabrielSantos23/downly/internal/http/websocket"
	"github.com/GabrielSantos23/downly/internal/job"
	"github.com/GabrielSantos23/downly/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// ProcessorService is the union of what the submission and task
	// controllers (and the socket layer) need from the job processor.
	ProcessorService interface {
		videos.SubmitService
		tasks.TaskService
		AllTasks() []job.Job
	}

	// The RestGateway is a thin wrapper around the Echo HTTP router. Its sole
	// responsibility is to create the routes the engine exposes and to manage
	// ongoing web socket connections and their live task updates.
	RestGateway struct {
		*broadcaster
		config              *RestConfig
		ec                  *echo.Echo
		socket              *websocket.SocketHub
		processor           ProcessorService
		videoController     controller
		audioController     controller
		taskController      controller
		artifactsController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with the routes
// defined by the various controllers, then subscribes the websocket
// broadcaster to the job lifecycle events on the provided bus.
func NewRestGateway(
	config *RestConfig,
	resolverService videos.ResolverService,
	processorService ProcessorService,
	artifactStore artifacts.Store,
	eventBus event.EventHandler,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:         newBroadcaster(socket, processorService),
		config:              config,
		ec:                  ec,
		socket:              socket,
		processor:           processorService,
		videoController:     videos.New(job.KindVideo, resolverService, processorService),
		audioController:     videos.New(job.KindAudio, resolverService, processorService),
		taskController:      tasks.New(processorService),
		artifactsController: artifacts.New(artifactStore),
	}

	gateway.broadcaster.registerWith(eventBus)
	gateway.bindSocketCommands()

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Use(middleware.CORS())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	video := ec.Group("/video")
	gateway.videoController.SetRoutes(video)

	audio := ec.Group("/audio")
	gateway.audioController.SetRoutes(audio)

	task := ec.Group("/task")
	gateway.taskController.SetRoutes(task)

	downloads := ec.Group("/downloads")
	gateway.artifactsController.SetRoutes(downloads)

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
