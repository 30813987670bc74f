// Package a2a implements the Agent-to-Agent JSON-RPC 2.0 wire protocol:
// message/send, tasks/get, tasks/cancel, and the .well-known/agent.json
// agent-card surface. Adapted from runtime/a2a/types/types.go and
// runtime/a2a/server.go.
package a2a

import "time"

type (
	// MessagePart is one part of a Message; only Kind "text" is produced
	// by this module, but "data" and "file" are accepted on the wire.
	MessagePart struct {
		Kind string `json:"kind"`
		Text string `json:"text,omitempty"`
		Data any    `json:"data,omitempty"`
	}

	// Message is one turn in an A2A conversation.
	Message struct {
		Role      string        `json:"role"`
		Parts     []MessagePart `json:"parts"`
		MessageID string        `json:"messageId"`
		TaskID    string        `json:"taskId,omitempty"`
		ContextID string        `json:"contextId,omitempty"`
		Kind      string        `json:"kind"`
	}

	// TaskStatus is the current status of a Task.
	TaskStatus struct {
		State     string    `json:"state"`
		Message   *Message  `json:"message,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	}

	// Artifact is a named output produced by a task, e.g. a tool effect
	// summary.
	Artifact struct {
		Name  string        `json:"name"`
		Parts []MessagePart `json:"parts"`
	}

	// Task is the A2A task resource returned by tasks/get and as the
	// result of message/send when the reply is not a plain message.
	Task struct {
		ID        string     `json:"id"`
		ContextID string     `json:"contextId,omitempty"`
		Status    TaskStatus `json:"status"`
		History   []Message  `json:"history,omitempty"`
		Artifacts []Artifact `json:"artifacts,omitempty"`
	}

	// Skill is one capability an agent advertises.
	Skill struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	// Capabilities are the behavioral flags an agent advertises.
	Capabilities struct {
		Streaming              bool `json:"streaming"`
		PushNotifications      bool `json:"pushNotifications"`
		StateTransitionHistory bool `json:"stateTransitionHistory"`
	}

	// AgentCard is the self-describing metadata an agent publishes.
	AgentCard struct {
		Name               string       `json:"name"`
		Description        string       `json:"description"`
		URL                string       `json:"url"`
		PreferredTransport string       `json:"preferredTransport"`
		Capabilities       Capabilities `json:"capabilities"`
		DefaultInputModes  []string     `json:"defaultInputModes"`
		DefaultOutputModes []string     `json:"defaultOutputModes"`
		Skills             []Skill      `json:"skills"`
		Version            string       `json:"version"`
	}
)

const (
	PreferredTransportJSONRPC = "JSONRPC"
	PreferredTransportHTTP    = "HTTP+JSON"
	PreferredTransportGRPC    = "GRPC"
)

const (
	TaskStateSubmitted     = "submitted"
	TaskStateWorking       = "working"
	TaskStateInputRequired = "input-required"
	TaskStateCompleted     = "completed"
	TaskStateCancelled     = "cancelled"
	TaskStateFailed        = "failed"
)
