// Package zabbix talks to the Zabbix JSON-RPC API and the trapper port.
package zabbix

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"vfzsync/internal/instrument"
	"vfzsync/internal/syncerr"
)

const (
	system         = "zabbix"
	defaultTimeout = 10 * time.Second
)

type Config struct {
	URL         string
	Username    string
	Password    string
	Timeout     time.Duration
	InsecureTLS bool
}

type Client struct {
	endpoint   string
	cfg        Config
	httpClient *http.Client
	recorder   *instrument.Recorder

	mu     sync.RWMutex
	token  string
	nextID int64
}

// RPCError is an error object returned by the API.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s %s", e.Code, e.Message, e.Data)
}

func NewClient(cfg Config, recorder *instrument.Recorder) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	endpoint := strings.TrimRight(cfg.URL, "/")
	if !strings.HasSuffix(endpoint, "api_jsonrpc.php") {
		endpoint += "/api_jsonrpc.php"
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Client{
		endpoint:   endpoint,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		recorder:   recorder,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
	Auth    string `json:"auth,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Login obtains an auth token. An RPC error answer means the credentials
// were refused; transport failures keep their kind.
func (c *Client) Login(ctx context.Context) error {
	var token string
	err := c.recorder.Call(ctx, system, "user.login", func(ctx context.Context) error {
		params := map[string]string{"user": c.cfg.Username, "password": c.cfg.Password}
		return c.post(ctx, "user.login", "", params, &token)
	})
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return syncerr.Unauthorized(system, "user.login", err)
		}
		return err
	}
	if token == "" {
		return syncerr.Unauthorized(system, "user.login", errors.New("empty auth token"))
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

func (c *Client) auth() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// call runs an authenticated method, logging in again once when the
// session was terminated.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	fn := func(ctx context.Context) error {
		return c.post(ctx, method, c.auth(), params, out)
	}
	err := c.recorder.Call(ctx, system, method, fn)
	if err != nil && syncerr.IsUnauthorized(err) {
		if lerr := c.Login(ctx); lerr != nil {
			return lerr
		}
		err = c.recorder.Call(ctx, system, method, fn)
	}
	return err
}

func (c *Client) post(ctx context.Context, method, auth string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      atomic.AddInt64(&c.nextID, 1),
		Auth:    auth,
	})
	if err != nil {
		return syncerr.Rejected(system, method, fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return syncerr.Transport(system, method, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return syncerr.Transport(system, method, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return syncerr.Transport(system, method, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode >= 500 {
		return syncerr.Transport(system, method, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	if resp.StatusCode != http.StatusOK {
		return syncerr.Rejected(system, method, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return syncerr.Rejected(system, method, fmt.Errorf("decode response: %w", err))
	}
	if rr.Error != nil {
		if isAuthError(rr.Error) {
			return syncerr.Unauthorized(system, method, rr.Error)
		}
		return syncerr.Rejected(system, method, rr.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return syncerr.Rejected(system, method, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

func isAuthError(e *RPCError) bool {
	text := strings.ToLower(e.Message + " " + e.Data)
	return strings.Contains(text, "not authorised") ||
		strings.Contains(text, "not authorized") ||
		strings.Contains(text, "session terminated")
}

// flexInt decodes numbers Zabbix sends either as JSON numbers or strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// flexString decodes ids Zabbix sends either as strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	*f = flexString(strings.Trim(s, `"`))
	return nil
}
