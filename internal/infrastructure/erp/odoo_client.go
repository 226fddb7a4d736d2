package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/marketsync/backend/internal/domain/integration"
)

const (
	// maxOdooResponseSize limits the response body size to prevent memory exhaustion
	maxOdooResponseSize = 10 * 1024 * 1024 // 10MB max response
	jsonrpcVersion      = "2.0"
)

// Config holds the Odoo endpoint settings
type Config struct {
	URL      string
	Database string
	User     string
	Password string
	Timeout  time.Duration
}

// Validate checks the configuration for required fields
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("erp: url is required")
	}
	if c.Database == "" {
		return errors.New("erp: database is required")
	}
	if c.User == "" {
		return errors.New("erp: user is required")
	}
	if c.Password == "" {
		return errors.New("erp: password is required")
	}
	return nil
}

// OdooClient implements integration.ErpClient over the Odoo JSON-RPC
// endpoint. Authentication is lazy: the uid is fetched on first use and
// cached for the client lifetime.
type OdooClient struct {
	config     *Config
	httpClient *http.Client

	mu     sync.Mutex
	uid    int64
	nextID int64
}

// NewOdooClient creates a client for one Odoo instance
func NewOdooClient(config *Config) (*OdooClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OdooClient{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type rpcRequest struct {
	Jsonrpc string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Message string `json:"message"`
	} `json:"data"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// Search returns ids of records matching all conditions
func (c *OdooClient) Search(ctx context.Context, model string, conditions []integration.Condition) ([]int64, error) {
	domain := make([]any, 0, len(conditions))
	for _, cond := range conditions {
		domain = append(domain, []any{cond.Field, cond.Operator, cond.Value})
	}

	raw, err := c.executeKw(ctx, model, "search", []any{domain}, nil)
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("erp: failed to parse search result: %w", err)
	}
	return ids, nil
}

// Read returns the requested fields for the given ids
func (c *OdooClient) Read(ctx context.Context, model string, ids []int64, fields []string) ([]map[string]any, error) {
	raw, err := c.executeKw(ctx, model, "read", []any{ids}, map[string]any{"fields": fields})
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("erp: failed to parse read result: %w", err)
	}
	return rows, nil
}

// Create inserts a record and returns its id
func (c *OdooClient) Create(ctx context.Context, model string, fields map[string]any) (int64, error) {
	raw, err := c.executeKw(ctx, model, "create", []any{fields}, nil)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, fmt.Errorf("erp: failed to parse create result: %w", err)
	}
	return id, nil
}

// Write updates the given records
func (c *OdooClient) Write(ctx context.Context, model string, ids []int64, fields map[string]any) error {
	_, err := c.executeKw(ctx, model, "write", []any{ids, fields}, nil)
	return err
}

// Execute invokes an arbitrary method on the given records
func (c *OdooClient) Execute(ctx context.Context, model string, method string, args ...any) (any, error) {
	raw, err := c.executeKw(ctx, model, method, args, nil)
	if err != nil {
		return nil, err
	}

	var result any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("erp: failed to parse %s result: %w", method, err)
		}
	}
	return result, nil
}

// executeKw performs one execute_kw call, authenticating first if needed
func (c *OdooClient) executeKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	uid, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	callArgs := []any{c.config.Database, uid, c.config.Password, model, method}
	callArgs = append(callArgs, args...)
	if kwargs != nil {
		callArgs = append(callArgs, kwargs)
	}

	return c.call(ctx, "object", "execute_kw", callArgs)
}

// authenticate fetches and caches the session uid
func (c *OdooClient) authenticate(ctx context.Context) (int64, error) {
	c.mu.Lock()
	uid := c.uid
	c.mu.Unlock()
	if uid != 0 {
		return uid, nil
	}

	raw, err := c.call(ctx, "common", "authenticate",
		[]any{c.config.Database, c.config.User, c.config.Password, map[string]any{}})
	if err != nil {
		return 0, err
	}

	// Odoo answers false, not an error, on bad credentials
	if err := json.Unmarshal(raw, &uid); err != nil || uid == 0 {
		return 0, fmt.Errorf("%w: authentication rejected for %q", integration.ErrErpRequestFailed, c.config.User)
	}

	c.mu.Lock()
	c.uid = uid
	c.mu.Unlock()
	return uid, nil
}

// call performs one JSON-RPC round trip
func (c *OdooClient) call(ctx context.Context, service, method string, args []any) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	bodyBytes, err := json.Marshal(rpcRequest{
		Jsonrpc: jsonrpcVersion,
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      id,
	})
	if err != nil {
		return nil, fmt.Errorf("erp: failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/jsonrpc", c.config.URL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("erp: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrErpUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOdooResponseSize))
	if err != nil {
		return nil, fmt.Errorf("erp: failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrErpUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrErpRequestFailed, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("erp: failed to parse response: %w", err)
	}
	if rpcResp.Error != nil {
		msg := rpcResp.Error.Data.Message
		if msg == "" {
			msg = rpcResp.Error.Message
		}
		return nil, fmt.Errorf("%w: %s", integration.ErrErpRequestFailed, msg)
	}

	return rpcResp.Result, nil
}
