package api

import (
	"github.com/GabrielSantos23/downly/internal/api/tasks"
	"github.com/GabrielSantos23/downly/internal/event"
	"github.com/GabrielSantos23/downly/internal/http/websocket"
	"github.com/google/uuid"
)

const (
	TitleTaskUpdate   = "TASK_UPDATE"
	TitleTaskProgress = "TASK_PROGRESS_UPDATE"
	TitleTaskComplete = "TASK_COMPLETE"
)

type (
	TaskUpdate struct {
		TaskID uuid.UUID     `json:"task_id"`
		Task   *tasks.TaskDto `json:"task"`
	}

	// broadcaster translates job lifecycle events from the event bus in to
	// pushes over the websocket hub, so connected clients see task state
	// without polling.
	broadcaster struct {
		socketHub   *websocket.SocketHub
		taskService tasks.TaskService
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, taskService tasks.TaskService) *broadcaster {
	return &broadcaster{socketHub: socketHub, taskService: taskService}
}

// registerWith subscribes the broadcaster to the job lifecycle events.
// Handlers run asynchronously so a slow socket write can never block the
// worker which dispatched the event.
func (hub *broadcaster) registerWith(eventBus event.EventHandler) {
	eventBus.RegisterAsyncHandlerFunction(event.JOB_UPDATE, func(_ event.Event, payload event.Payload) {
		hub.broadcastTask(TitleTaskUpdate, payload)
	})
	eventBus.RegisterAsyncHandlerFunction(event.JOB_PROGRESS, func(_ event.Event, payload event.Payload) {
		hub.broadcastTask(TitleTaskProgress, payload)
	})
	eventBus.RegisterAsyncHandlerFunction(event.JOB_COMPLETE, func(_ event.Event, payload event.Payload) {
		hub.broadcastTask(TitleTaskComplete, payload)
	})
}

func (hub *broadcaster) broadcastTask(title string, payload event.Payload) {
	id, ok := payload.(uuid.UUID)
	if !ok {
		return
	}

	update := TaskUpdate{TaskID: id}
	if task, err := hub.taskService.Task(id); err == nil {
		dto := tasks.NewDto(task)
		update.Task = &dto
	}

	hub.broadcast(title, update)
}

func (hub *broadcaster) broadcast(title string, update any) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]interface{}{"arguments": update},
		Type:  websocket.Update,
	})
}
