package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

// Error returned by the wallet in the JSON-RPC error member
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() (s string) {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

type (
	request struct {
		JsonRpc string `json:"jsonrpc"`
		Id      uint64 `json:"id"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}
	response struct {
		Id     uint64          `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
)

type Client struct {
	url     string
	headers map[string]string
	client  *http.Client
	nextId  atomic.Uint64
}

func New(config Config) (c *Client) {
	c = &Client{
		url:     config.Url,
		headers: config.CustomHeaders,
		client:  config.Client,
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	return c
}

// Call executes method with params and decodes the result into result. result may be nil
func (c *Client) Call(ctx context.Context, method string, params, result any) (err error) {
	body, err := json.Marshal(request{
		JsonRpc: "2.0",
		Id:      c.nextId.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		contents, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("unexpected status code: %d: %s", res.StatusCode, contents)
	}

	var rpcRes response
	err = json.NewDecoder(res.Body).Decode(&rpcRes)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if rpcRes.Error != nil {
		return rpcRes.Error
	}

	if result == nil {
		return nil
	}
	err = json.Unmarshal(rpcRes.Result, result)
	if err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}
