package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeHandler struct {
	result     SendMessageResult
	handleErr  error
	cancelErr  error
	gotCancels []string
}

func (f *fakeHandler) HandleMessage(context.Context, SendMessageRequest) (SendMessageResult, error) {
	return f.result, f.handleErr
}

func (f *fakeHandler) CancelTask(_ context.Context, taskID string) error {
	f.gotCancels = append(f.gotCancels, taskID)
	return f.cancelErr
}

type fakeTaskStore struct {
	tasks map[string]*Task
}

func (f *fakeTaskStore) LoadTask(_ context.Context, taskID string) (*Task, bool, error) {
	t, ok := f.tasks[taskID]
	return t, ok, nil
}

func (f *fakeTaskStore) MarkCancelled(_ context.Context, taskID string) (*Task, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, errors.New("no such task")
	}
	t.Status.State = TaskStateCancelled
	return t, nil
}

func rpcRequest(method string, params any) *http.Request {
	body, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "req-1", "method": method, "params": params,
	})
	return httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
}

func decodeRPC(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var env map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	return env
}

func TestServeHTTP_AgentCardEndpoint(t *testing.T) {
	card := AgentCard{Name: "orchestrator"}
	srv := NewServer(&fakeHandler{}, &fakeTaskStore{}, card)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var got AgentCard
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode card: %v", err)
	}
	if got.Name != "orchestrator" {
		t.Fatalf("unexpected card: %+v", got)
	}
}

func TestServeHTTP_MessageSendReturnsMessageResult(t *testing.T) {
	handler := &fakeHandler{result: SendMessageResult{Message: &Message{
		Parts: []MessagePart{{Kind: "text", Text: "lights on"}},
	}}}
	srv := NewServer(handler, &fakeTaskStore{}, AgentCard{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, rpcRequest("message/send", SendMessageRequest{Message: Message{
		Parts: []MessagePart{{Kind: "text", Text: "turn on the lights"}},
	}}))

	env := decodeRPC(t, rec)
	if _, hasErr := env["error"]; hasErr {
		t.Fatalf("unexpected error in response: %s", env["error"])
	}
	var msg Message
	if err := json.Unmarshal(env["result"], &msg); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if msg.Parts[0].Text != "lights on" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestServeHTTP_MessageSendStampsMissingMessageID(t *testing.T) {
	var captured SendMessageRequest
	handler := &capturingHandler{onHandle: func(_ context.Context, req SendMessageRequest) (SendMessageResult, error) {
		captured = req
		return SendMessageResult{Message: &Message{Parts: []MessagePart{{Kind: "text", Text: "ok"}}}}, nil
	}}
	srv := NewServer(handler, &fakeTaskStore{}, AgentCard{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, rpcRequest("message/send", SendMessageRequest{Message: Message{
		Parts: []MessagePart{{Kind: "text", Text: "hi"}},
	}}))

	if captured.Message.MessageID == "" {
		t.Fatal("expected the server to stamp a message id when absent")
	}
}

type capturingHandler struct {
	onHandle func(context.Context, SendMessageRequest) (SendMessageResult, error)
}

func (c *capturingHandler) HandleMessage(ctx context.Context, req SendMessageRequest) (SendMessageResult, error) {
	return c.onHandle(ctx, req)
}
func (c *capturingHandler) CancelTask(context.Context, string) error { return nil }

func TestServeHTTP_MessageSendHandlerErrorBecomesInternalError(t *testing.T) {
	handler := &fakeHandler{handleErr: errors.New("boom")}
	srv := NewServer(handler, &fakeTaskStore{}, AgentCard{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, rpcRequest("message/send", SendMessageRequest{}))

	env := decodeRPC(t, rec)
	var rpcErr Error
	if err := json.Unmarshal(env["error"], &rpcErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if rpcErr.Code != ErrCodeInternal {
		t.Fatalf("expected ErrCodeInternal, got %d", rpcErr.Code)
	}
}

func TestServeHTTP_TasksGetReturnsTaskNotFound(t *testing.T) {
	srv := NewServer(&fakeHandler{}, &fakeTaskStore{tasks: map[string]*Task{}}, AgentCard{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, rpcRequest("tasks/get", map[string]string{"id": "ghost"}))

	env := decodeRPC(t, rec)
	var rpcErr Error
	if err := json.Unmarshal(env["error"], &rpcErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if rpcErr.Code != ErrCodeTaskNotFound {
		t.Fatalf("expected ErrCodeTaskNotFound, got %d", rpcErr.Code)
	}
}

func TestServeHTTP_TasksGetReturnsACopyOfTheTask(t *testing.T) {
	task := &Task{ID: "task-1", Status: TaskStatus{State: TaskStateWorking}}
	store := &fakeTaskStore{tasks: map[string]*Task{"task-1": task}}
	srv := NewServer(&fakeHandler{}, store, AgentCard{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, rpcRequest("tasks/get", map[string]string{"id": "task-1"}))

	env := decodeRPC(t, rec)
	var got Task
	if err := json.Unmarshal(env["result"], &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got.ID != "task-1" || got.Status.State != TaskStateWorking {
		t.Fatalf("unexpected task: %+v", got)
	}
}

func TestServeHTTP_TasksCancelMarksTaskCancelled(t *testing.T) {
	task := &Task{ID: "task-1", Status: TaskStatus{State: TaskStateWorking}}
	store := &fakeTaskStore{tasks: map[string]*Task{"task-1": task}}
	handler := &fakeHandler{}
	srv := NewServer(handler, store, AgentCard{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, rpcRequest("tasks/cancel", map[string]string{"id": "task-1"}))

	env := decodeRPC(t, rec)
	var got Task
	if err := json.Unmarshal(env["result"], &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got.Status.State != TaskStateCancelled {
		t.Fatalf("expected cancelled state, got %q", got.Status.State)
	}
	if len(handler.gotCancels) != 1 || handler.gotCancels[0] != "task-1" {
		t.Fatalf("expected the handler to be signalled first, got %v", handler.gotCancels)
	}
}

func TestServeHTTP_TasksCancelHandlerErrorIsNotCancelable(t *testing.T) {
	handler := &fakeHandler{cancelErr: errors.New("already completed")}
	srv := NewServer(handler, &fakeTaskStore{tasks: map[string]*Task{}}, AgentCard{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, rpcRequest("tasks/cancel", map[string]string{"id": "task-1"}))

	env := decodeRPC(t, rec)
	var rpcErr Error
	if err := json.Unmarshal(env["error"], &rpcErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if rpcErr.Code != ErrCodeTaskNotCancelable {
		t.Fatalf("expected ErrCodeTaskNotCancelable, got %d", rpcErr.Code)
	}
}

func TestServeHTTP_UnknownMethodIsMethodNotFound(t *testing.T) {
	srv := NewServer(&fakeHandler{}, &fakeTaskStore{}, AgentCard{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, rpcRequest("tasks/explode", nil))

	env := decodeRPC(t, rec)
	var rpcErr Error
	if err := json.Unmarshal(env["error"], &rpcErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if rpcErr.Code != ErrCodeMethodNotFound {
		t.Fatalf("expected ErrCodeMethodNotFound, got %d", rpcErr.Code)
	}
}

func TestServeHTTP_MalformedBodyIsParseError(t *testing.T) {
	srv := NewServer(&fakeHandler{}, &fakeTaskStore{}, AgentCard{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("not json")))
	srv.ServeHTTP(rec, req)

	env := decodeRPC(t, rec)
	var rpcErr Error
	if err := json.Unmarshal(env["error"], &rpcErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if rpcErr.Code != ErrCodeParse {
		t.Fatalf("expected ErrCodeParse, got %d", rpcErr.Code)
	}
}

func TestSendMessageResult_MarshalJSONPrefersTask(t *testing.T) {
	res := SendMessageResult{
		Message: &Message{Parts: []MessagePart{{Kind: "text", Text: "ignored"}}},
		Task:    &Task{ID: "task-1"},
	}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Task
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal as task: %v", err)
	}
	if got.ID != "task-1" {
		t.Fatalf("expected the task branch to win, got %+v", got)
	}
}
