package api

import (
	"fmt"

	"github.com/GabrielSantos23/downly/internal/api/tasks"
	"github.com/GabrielSantos23/downly/internal/http/websocket"
	"github.com/google/uuid"
)

// taskTargetBody is the decoded body shape for socket commands which
// address a single task.
type taskTargetBody struct {
	TaskID string `mapstructure:"task_id"`
}

// bindSocketCommands installs the websocket command handlers and the
// connection callback which furnishes new clients with the current task
// index.
func (gateway *RestGateway) bindSocketCommands() {
	gateway.socket.WithConnectionCallback(func() map[string]interface{} {
		return map[string]interface{}{"tasks": gateway.taskIndex()}
	})

	gateway.socket.
		BindCommand("TASK_INDEX", gateway.wsTaskIndex).
		BindCommand("TASK_STATUS", gateway.wsTaskStatus).
		BindCommand("TASK_CANCEL", gateway.wsTaskCancel)
}

func (gateway *RestGateway) wsTaskIndex(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
	hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]interface{}{"payload": gateway.taskIndex()}, websocket.Response))
	return nil
}

func (gateway *RestGateway) wsTaskStatus(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
	id, err := decodeTaskTarget(message)
	if err != nil {
		return err
	}

	task, err := gateway.processor.Task(id)
	if err != nil {
		return fmt.Errorf("no task found with ID %s", id)
	}

	hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]interface{}{"payload": tasks.NewDto(task)}, websocket.Response))
	return nil
}

func (gateway *RestGateway) wsTaskCancel(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
	id, err := decodeTaskTarget(message)
	if err != nil {
		return err
	}

	if err := gateway.processor.CancelTask(id); err != nil {
		return fmt.Errorf("failed to cancel task %s: %w", id, err)
	}

	hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]interface{}{"payload": id}, websocket.Response))
	return nil
}

func (gateway *RestGateway) taskIndex() []tasks.TaskDto {
	all := gateway.processor.AllTasks()
	dtos := make([]tasks.TaskDto, len(all))
	for k, v := range all {
		dtos[k] = tasks.NewDto(v)
	}

	return dtos
}

func decodeTaskTarget(message *websocket.SocketMessage) (uuid.UUID, error) {
	var body taskTargetBody
	if err := message.DecodeBodyInto(&body); err != nil {
		return uuid.Nil, fmt.Errorf("failed to decode command body: %w", err)
	}

	id, err := uuid.Parse(body.TaskID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("'task_id' is not a valid UUID")
	}

	return id, nil
}
