package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type (
	// Handler is the orchestration core's entry point, implemented by the
	// workflow driver. The server never interprets the reply itself — it
	// only re-encodes whatever the driver decided onto the wire.
	Handler interface {
		HandleMessage(ctx context.Context, req SendMessageRequest) (SendMessageResult, error)
		CancelTask(ctx context.Context, taskID string) error
	}

	// TaskStore is the minimal task-lookup surface the server needs for
	// tasks/get; the driver owns writes through its own persistence path
	// (internal/conversation), so this interface is read-only plus the
	// cancellation-state transition tasks/cancel requires.
	TaskStore interface {
		LoadTask(ctx context.Context, taskID string) (*Task, bool, error)
		MarkCancelled(ctx context.Context, taskID string) (*Task, error)
	}

	// Server implements the A2A JSON-RPC surface by delegating to Handler
	// and TaskStore. Adapted from runtime/a2a/server.go, generalized from
	// a single generated agent runtime to the orchestration Handler.
	Server struct {
		handler Handler
		tasks   TaskStore
		card    AgentCard
	}
)

// NewServer constructs a Server.
func NewServer(handler Handler, tasks TaskStore, card AgentCard) *Server {
	return &Server{handler: handler, tasks: tasks, card: card}
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// ServeHTTP dispatches message/send, tasks/get, and tasks/cancel JSON-RPC
// calls, and the .well-known/agent.json card request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == "/.well-known/agent.json" {
		s.writeJSON(w, http.StatusOK, s.card)
		return
	}
	var env rpcEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		s.writeError(w, env.ID, &Error{Code: ErrCodeParse, Message: "invalid JSON-RPC envelope"})
		return
	}
	ctx := r.Context()
	switch env.Method {
	case "message/send":
		s.handleSend(ctx, w, env)
	case "tasks/get":
		s.handleGet(ctx, w, env)
	case "tasks/cancel":
		s.handleCancel(ctx, w, env)
	default:
		s.writeError(w, env.ID, &Error{Code: ErrCodeMethodNotFound, Message: "unknown method " + env.Method})
	}
}

func (s *Server) handleSend(ctx context.Context, w http.ResponseWriter, env rpcEnvelope) {
	var req SendMessageRequest
	if err := json.Unmarshal(env.Params, &req); err != nil {
		s.writeError(w, env.ID, &Error{Code: ErrCodeInvalidParams, Message: "invalid message/send params"})
		return
	}
	if req.Message.MessageID == "" {
		req.Message.MessageID = uuid.NewString()
	}
	result, err := s.handler.HandleMessage(ctx, req)
	if err != nil {
		s.writeError(w, env.ID, &Error{Code: ErrCodeInternal, Message: err.Error()})
		return
	}
	var payload any
	if result.Task != nil {
		payload = result.Task
	} else {
		payload = result.Message
	}
	s.writeResult(w, env.ID, payload)
}

func (s *Server) handleGet(ctx context.Context, w http.ResponseWriter, env rpcEnvelope) {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Params, &params); err != nil {
		s.writeError(w, env.ID, &Error{Code: ErrCodeInvalidParams, Message: "invalid tasks/get params"})
		return
	}
	task, ok, err := s.tasks.LoadTask(ctx, params.ID)
	if err != nil {
		s.writeError(w, env.ID, &Error{Code: ErrCodeInternal, Message: err.Error()})
		return
	}
	if !ok {
		s.writeError(w, env.ID, &Error{Code: ErrCodeTaskNotFound, Message: fmt.Sprintf("task %q not found", params.ID)})
		return
	}
	s.writeResult(w, env.ID, copyTask(task))
}

func (s *Server) handleCancel(ctx context.Context, w http.ResponseWriter, env rpcEnvelope) {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Params, &params); err != nil {
		s.writeError(w, env.ID, &Error{Code: ErrCodeInvalidParams, Message: "invalid tasks/cancel params"})
		return
	}
	// Signal the in-flight request first so a concurrent completion
	// cannot race the snapshot write below.
	if err := s.handler.CancelTask(ctx, params.ID); err != nil {
		s.writeError(w, env.ID, &Error{Code: ErrCodeTaskNotCancelable, Message: err.Error()})
		return
	}
	task, err := s.tasks.MarkCancelled(ctx, params.ID)
	if err != nil {
		s.writeError(w, env.ID, &Error{Code: ErrCodeInternal, Message: err.Error()})
		return
	}
	s.writeResult(w, env.ID, copyTask(task))
}

func (s *Server) writeResult(w http.ResponseWriter, id string, result any) {
	s.writeJSON(w, http.StatusOK, map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (s *Server) writeError(w http.ResponseWriter, id string, rpcErr *Error) {
	s.writeJSON(w, http.StatusOK, map[string]any{"jsonrpc": "2.0", "id": id, "error": rpcErr})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// copyTask deep-copies a Task so concurrent readers of the backing store
// never observe a mutation mid-response, mirroring the teacher's
// copyTaskStatus/copyTaskMessage defensive-copy idiom.
func copyTask(t *Task) *Task {
	cp := *t
	if t.Status.Message != nil {
		msg := *t.Status.Message
		msg.Parts = append([]MessagePart(nil), t.Status.Message.Parts...)
		cp.Status.Message = &msg
	}
	cp.History = append([]Message(nil), t.History...)
	cp.Artifacts = append([]Artifact(nil), t.Artifacts...)
	return &cp
}

// NewTaskStatus builds a TaskStatus stamped with the current time in UTC,
// matching the teacher's RFC3339-UTC timestamp convention.
func NewTaskStatus(state string, msg *Message) TaskStatus {
	return TaskStatus{State: state, Message: msg, Timestamp: time.Now().UTC()}
}
