// Package command is a client for the FNT Command REST API.
package command

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"vfzsync/internal/instrument"
	"vfzsync/internal/inventory"
	"vfzsync/internal/syncerr"
)

const (
	system         = "command"
	defaultTimeout = 5 * time.Second
	loginMethod    = "businessGateway/login"
)

type Config struct {
	URL         string
	Username    string
	Password    string
	ManID       string
	UserGroup   string
	Timeout     time.Duration
	InsecureTLS bool
}

type Client struct {
	baseURL    string
	cfg        Config
	httpClient *http.Client
	recorder   *instrument.Recorder

	mu        sync.RWMutex
	sessionID string
}

// APIError is a non-2xx HTTP response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

func NewClient(cfg Config, recorder *instrument.Recorder) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ManID == "" {
		cfg.ManID = "1001"
	}
	if cfg.UserGroup == "" {
		cfg.UserGroup = "Adm|G"
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Client{
		baseURL:    restBase(cfg.URL),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		recorder:   recorder,
	}
}

const restPath = "/axis/api/rest"

// restBase accepts both the server root and a URL that already names the
// REST path.
func restBase(raw string) string {
	base := strings.TrimRight(raw, "/")
	if strings.HasSuffix(base, restPath) {
		return base
	}
	return base + restPath
}

// statusError is a response whose status block reports failure.
type statusError struct {
	msg string
}

func (e *statusError) Error() string { return e.msg }

type status struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

type envelope struct {
	Status     status          `json:"status"`
	SessionID  string          `json:"sessionId"`
	ReturnData json.RawMessage `json:"returnData"`
}

// Login opens a session. Rejected credentials are reported as unauthorized;
// transport failures keep their kind so callers can retry.
func (c *Client) Login(ctx context.Context) error {
	payload := map[string]any{
		"user":          c.cfg.Username,
		"password":      c.cfg.Password,
		"manId":         c.cfg.ManID,
		"userGroupName": c.cfg.UserGroup,
	}
	var env envelope
	err := c.recorder.Call(ctx, system, "login", func(ctx context.Context) error {
		var err error
		env, err = c.post(ctx, loginMethod, "", payload)
		return err
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return syncerr.Unauthorized(system, "login", err)
		}
		return err
	}
	if env.SessionID == "" {
		return syncerr.Unauthorized(system, "login", errors.New("empty session id"))
	}
	c.mu.Lock()
	c.sessionID = env.SessionID
	c.mu.Unlock()
	return nil
}

func (c *Client) session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// do runs an authenticated call, logging in again once when the session
// has expired.
func (c *Client) do(ctx context.Context, op, method string, payload any) (json.RawMessage, error) {
	var env envelope
	call := func(ctx context.Context) error {
		var err error
		env, err = c.post(ctx, method, c.session(), payload)
		return err
	}
	err := c.recorder.Call(ctx, system, op, call)
	if err != nil && syncerr.IsUnauthorized(err) {
		if lerr := c.Login(ctx); lerr != nil {
			return nil, lerr
		}
		err = c.recorder.Call(ctx, system, op, call)
	}
	if err != nil {
		return nil, err
	}
	return env.ReturnData, nil
}

func (c *Client) post(ctx context.Context, method, sessionID string, payload any) (envelope, error) {
	var env envelope
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return env, syncerr.Rejected(system, method, fmt.Errorf("encode payload: %w", err))
	}
	fullURL := c.baseURL + "/" + method
	if sessionID != "" {
		fullURL += "?" + url.Values{"sessionId": []string{sessionID}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return env, syncerr.Transport(system, method, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return env, syncerr.Transport(system, method, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, syncerr.Transport(system, method, fmt.Errorf("failed to read response: %w", err))
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return env, syncerr.Unauthorized(system, method, &APIError{Status: resp.StatusCode, Body: string(raw)})
	case resp.StatusCode >= 500:
		return env, syncerr.Transport(system, method, &APIError{Status: resp.StatusCode, Body: string(raw)})
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return env, syncerr.Rejected(system, method, &APIError{Status: resp.StatusCode, Body: string(raw)})
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return env, syncerr.Rejected(system, method, fmt.Errorf("decode response: %w", err))
	}
	if !env.Status.Success {
		msg := strings.TrimSpace(env.Status.Message)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if isSessionError(msg) {
			return env, syncerr.Unauthorized(system, method, &statusError{msg: msg})
		}
		return env, syncerr.Rejected(system, method, &statusError{msg: msg})
	}
	return env, nil
}

func isSessionError(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "session") && (strings.Contains(m, "invalid") || strings.Contains(m, "expired") || strings.Contains(m, "unknown"))
}

func entityPath(t inventory.EntityType) string {
	if t.Custom {
		return "entity/custom/" + t.Name
	}
	return "entity/" + t.Name
}

func decodeRows(raw json.RawMessage) ([]map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var rows []map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListVirtualServers queries virtual servers matching restrictions.
func (c *Client) ListVirtualServers(ctx context.Context, restrictions inventory.Restrictions) ([]inventory.VirtualServer, error) {
	if restrictions == nil {
		restrictions = inventory.Restrictions{}
	}
	payload := map[string]any{
		"restrictions":     restrictions,
		"returnAttributes": inventory.VirtualServerAttributes,
	}
	raw, err := c.do(ctx, "virtualServer.query", entityPath(inventory.VirtualServerType)+"/query", payload)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, syncerr.Rejected(system, "virtualServer.query", err)
	}
	out := make([]inventory.VirtualServer, 0, len(rows))
	for _, row := range rows {
		out = append(out, inventory.VirtualServerFromAttributes(row))
	}
	return out, nil
}

type relatedRow struct {
	Entity   map[string]any `json:"entity"`
	Relation map[string]any `json:"relation"`
}

// ListRelated returns the sub-entities of one class linked to a virtual
// server, keyed by natural key.
func (c *Client) ListRelated(ctx context.Context, class inventory.LinkedClass, vsElid string) (map[string]inventory.LinkedRecord, error) {
	method := fmt.Sprintf("%s/%s/%s", entityPath(inventory.VirtualServerType), vsElid, class.RelationPlural)
	payload := map[string]any{
		"entityRestrictions":     map[string]any{},
		"returnEntityAttributes": class.Attributes,
	}
	raw, err := c.do(ctx, "virtualServer."+class.RelationPlural, method, payload)
	if err != nil {
		return nil, err
	}
	var rows []relatedRow
	if len(raw) > 0 && string(raw) != "null" {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&rows); err != nil {
			return nil, syncerr.Rejected(system, method, err)
		}
	}
	out := make(map[string]inventory.LinkedRecord, len(rows))
	for _, row := range rows {
		rec := inventory.LinkedRecordFromAttributes(class, row.Entity, row.Relation)
		out[rec.Key] = rec
	}
	return out, nil
}

// Create creates an entity and returns its elid.
func (c *Client) Create(ctx context.Context, t inventory.EntityType, attrs map[string]any) (string, error) {
	raw, err := c.do(ctx, t.Name+".create", entityPath(t)+"/create", EncodeAttributes(attrs))
	if err != nil {
		return "", err
	}
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return "", syncerr.Rejected(system, t.Name+".create", fmt.Errorf("decode elid: %w", err))
	}
	elid := fmt.Sprint(out["elid"])
	if out["elid"] == nil || elid == "" {
		return "", syncerr.Rejected(system, t.Name+".create", errors.New("missing elid in response"))
	}
	return elid, nil
}

func (c *Client) Update(ctx context.Context, t inventory.EntityType, elid string, attrs map[string]any) error {
	_, err := c.do(ctx, t.Name+".update", fmt.Sprintf("%s/%s/update", entityPath(t), elid), EncodeAttributes(attrs))
	return err
}

func (c *Client) Delete(ctx context.Context, t inventory.EntityType, elid string) error {
	_, err := c.do(ctx, t.Name+".delete", fmt.Sprintf("%s/%s/delete", entityPath(t), elid), map[string]any{})
	return err
}

// Link relates linkedElid to the virtual server.
func (c *Client) Link(ctx context.Context, vsElid string, class inventory.LinkedClass, linkedElid string) error {
	attrs := map[string]any{
		"createLink" + class.Relation: []map[string]string{{"linkedElid": linkedElid}},
	}
	return c.Update(ctx, inventory.VirtualServerType, vsElid, attrs)
}

// Unlink removes the relation identified by linkElid.
func (c *Client) Unlink(ctx context.Context, vsElid string, class inventory.LinkedClass, linkElid string) error {
	attrs := map[string]any{
		"deleteLink" + class.Relation: []map[string]string{{"linkElid": linkElid}},
	}
	return c.Update(ctx, inventory.VirtualServerType, vsElid, attrs)
}

// EncodeAttributes converts typed attribute values to their wire form.
func EncodeAttributes(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = encodeValue(v)
	}
	return out
}

func encodeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return inventory.YesNo(x)
	case decimal.Decimal:
		return json.Number(x.String())
	case *decimal.Decimal:
		if x == nil {
			return ""
		}
		return json.Number(x.String())
	case time.Time:
		return x.Format(inventory.TimestampLayout)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.Format(inventory.TimestampLayout)
	default:
		return v
	}
}
