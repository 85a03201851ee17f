package websocket

import (
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

type MessageType int

const (
	Update MessageType = iota
	Command
	Response
	ErrorResponse
	Welcome
)

// SocketMessage is the envelope exchanged with connected clients. The Id
// field is echoed back on replies so the client can pair a response with
// the command that caused it; Origin/Target tie a message to a specific
// client connection and never leave the server.
type SocketMessage struct {
	Title  string                 `json:"title"`
	Body   map[string]interface{} `json:"arguments"`
	Id     int                    `json:"id"`
	Type   MessageType            `json:"type"`
	Origin *uuid.UUID             `json:"-"`
	Target *uuid.UUID             `json:"-"`
}

// DecodeBodyInto unpacks the loosely-typed message body into the given
// struct. Decoding is weakly typed as JSON numbers always arrive as
// float64 regardless of the field they are destined for.
func (message *SocketMessage) DecodeBodyInto(out interface{}) error {
	return mapstructure.WeakDecode(message.Body, out)
}

// FormReply returns a new message aimed back at the origin of this one,
// carrying over the message ID for client-side correlation.
func (message *SocketMessage) FormReply(replyTitle string, replyBody map[string]interface{}, replyType MessageType) *SocketMessage {
	return &SocketMessage{
		Title:  replyTitle,
		Body:   replyBody,
		Type:   replyType,
		Id:     message.Id,
		Target: message.Origin,
	}
}
