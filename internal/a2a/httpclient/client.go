// Package httpclient implements a2a.Caller over plain HTTP, POSTing JSON-RPC
// 2.0 envelopes to a peer's A2A endpoint. Adapted from runtime/a2a/httpclient.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/homemesh/orchestrator/internal/a2a"
)

// Client is an HTTP-backed a2a.Caller bound to one peer URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client for the given peer base URL.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

var _ a2a.Caller = (*Client)(nil)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *a2a.Error      `json:"error,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: uuid.NewString(), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// SendMessage posts message/send. The result is a Task when its "kind" wire
// field is "task", and a Message otherwise.
func (c *Client) SendMessage(ctx context.Context, req a2a.SendMessageRequest) (a2a.SendMessageResult, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "message/send", req, &raw); err != nil {
		return a2a.SendMessageResult{}, err
	}
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return a2a.SendMessageResult{}, fmt.Errorf("probe message/send result: %w", err)
	}
	if probe.Kind == "task" {
		var task a2a.Task
		if err := json.Unmarshal(raw, &task); err != nil {
			return a2a.SendMessageResult{}, fmt.Errorf("decode task result: %w", err)
		}
		return a2a.SendMessageResult{Task: &task}, nil
	}
	var msg a2a.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return a2a.SendMessageResult{}, fmt.Errorf("decode message result: %w", err)
	}
	return a2a.SendMessageResult{Message: &msg}, nil
}

func (c *Client) GetTask(ctx context.Context, taskID string) (a2a.Task, error) {
	var task a2a.Task
	err := c.call(ctx, "tasks/get", map[string]string{"id": taskID}, &task)
	return task, err
}

func (c *Client) CancelTask(ctx context.Context, taskID string) (a2a.Task, error) {
	var task a2a.Task
	err := c.call(ctx, "tasks/cancel", map[string]string{"id": taskID}, &task)
	return task, err
}

func (c *Client) AgentCard(ctx context.Context) (a2a.AgentCard, error) {
	var card a2a.AgentCard
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/.well-known/agent.json", nil)
	if err != nil {
		return card, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return card, err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return card, fmt.Errorf("decode agent card: %w", err)
	}
	return card, nil
}
