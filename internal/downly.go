package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/GabrielSantos23/downly/internal/api"
	"github.com/GabrielSantos23/downly/internal/artifact"
	"github.com/GabrielSantos23/downly/internal/event"
	"github.com/GabrielSantos23/downly/internal/job"
	"github.com/GabrielSantos23/downly/internal/processor"
	"github.com/GabrielSantos23/downly/internal/resolver"
	"github.com/GabrielSantos23/downly/internal/ytdlp"
	"github.com/GabrielSantos23/downly/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}
)

// Downly is the top-level object for the engine; it constructs the job
// store, resolver, processor, artifact store and REST gateway, and wires
// them together over the event bus.
type Downly struct {
	eventBus event.EventCoordinator
	config   DownlyConfig

	jobStore      *job.Store
	resolver      *resolver.Resolver
	processor     *processor.ProcessorService
	artifactStore *artifact.Store
	restGateway   *api.RestGateway
}

func New(config DownlyConfig) (*Downly, error) {
	log.Emit(logger.DEBUG, "Bootstrapping Downly services using config: %#v\n", config)

	downly := &Downly{
		eventBus: event.New(),
		config:   config,
		jobStore: job.NewStore(),
	}

	extractor := ytdlp.New(config.Extraction)
	downly.resolver = resolver.New(extractor)

	processorService, err := processor.New(
		config.Processor,
		extractor,
		processor.NewFfmpegTranscoder(config.Ffmpeg),
		downly.jobStore,
		downly.eventBus,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to construct processor service - %w", err)
	}
	downly.processor = processorService

	downly.artifactStore = artifact.New(config.Artifacts, config.Processor.OutputPath, config.Processor.WorkingPath, downly.jobStore)
	downly.restGateway = api.NewRestGateway(&config.RestConfig, downly.resolver, downly.processor, downly.artifactStore, downly.eventBus)

	return downly, nil
}

// Run brings up all services and blocks until the provided context is
// cancelled, or until a service crashes (which cancels the rest).
func (downly *Downly) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	wg := &sync.WaitGroup{}
	downly.spawnAsyncService(ctx, wg, downly.processor, "processor-service", crashHandler)
	downly.spawnAsyncService(ctx, wg, downly.artifactStore, "artifact-sweeper", crashHandler)
	downly.spawnAsyncService(ctx, wg, downly.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Downly services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService runs the provided service on its own goroutine,
// reporting panics and errors through the crash handler.
func (downly *Downly) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
