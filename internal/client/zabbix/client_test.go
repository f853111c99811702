package zabbix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vfzsync/internal/inventory"
	"vfzsync/internal/syncerr"
)

type rpcCall struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Auth   string          `json:"auth"`
}

type fakeZabbix struct {
	calls    []rpcCall
	logins   int
	results  map[string]any
	expireAt string
}

func (f *fakeZabbix) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var call rpcCall
	_ = json.NewDecoder(r.Body).Decode(&call)
	f.calls = append(f.calls, call)
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)

	if call.Method == "user.login" {
		var p map[string]string
		_ = json.Unmarshal(call.Params, &p)
		if p["password"] != "zabbix" {
			_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "error": map[string]any{"code": -32602, "message": "Invalid params.", "data": "Login name or password is incorrect."}})
			return
		}
		f.logins++
		_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "result": "tok" + string(rune('0'+f.logins))})
		return
	}
	if call.Method == f.expireAt && call.Auth == "tok1" {
		_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "error": map[string]any{"code": -32602, "message": "Invalid params.", "data": "Session terminated, re-login, please."}})
		return
	}
	res, ok := f.results[call.Method]
	if !ok {
		_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "error": map[string]any{"code": -32500, "message": "Application error.", "data": "No permissions"}})
		return
	}
	_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "result": res})
}

func newClient(t *testing.T, f *fakeZabbix, password string) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(f)
	c := NewClient(Config{URL: srv.URL, Username: "Admin", Password: password, Timeout: time.Second}, nil)
	return c, srv.Close
}

func TestClient_LoginRejected(t *testing.T) {
	c, done := newClient(t, &fakeZabbix{}, "wrong")
	defer done()
	if err := c.Login(context.Background()); !syncerr.IsUnauthorized(err) {
		t.Fatalf("err=%v want unauthorized", err)
	}
}

func TestClient_LoginTransportFailureKeepsKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := NewClient(Config{URL: srv.URL, Username: "Admin", Password: "zabbix", Timeout: time.Second}, nil)
	err := c.Login(context.Background())
	if !syncerr.IsTransport(err) || syncerr.IsUnauthorized(err) {
		t.Fatalf("err=%v want transport", err)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	addr := down.URL
	down.Close()
	c = NewClient(Config{URL: addr, Username: "Admin", Password: "zabbix", Timeout: time.Second}, nil)
	if err := c.Login(context.Background()); !syncerr.IsTransport(err) {
		t.Fatalf("err=%v want transport for refused connection", err)
	}
}

func TestClient_HostsWithObjects(t *testing.T) {
	f := &fakeZabbix{results: map[string]any{
		"host.get": []map[string]any{{
			"hostid": "10", "host": "VS-1", "name": "web01", "status": "1",
			"interfaces": []map[string]any{{"interfaceid": "77", "ip": "10.0.0.5", "port": "161"}},
			"macros":     []map[string]any{{"macro": "{$SNMP_COMMUNITY}", "value": "public"}},
		}},
		"trigger.get": []map[string]any{{
			"triggerid": "500", "status": "1", "value": "0",
			"tags":  []map[string]any{{"tag": "FNT_Flag", "value": "cSdiMonitoring"}},
			"hosts": []map[string]any{{"hostid": "10", "host": "VS-1"}},
		}},
		"item.get": []map[string]any{{
			"itemid": "900", "key_": "icmpping", "status": 1,
			"applications": []map[string]any{{"name": "cSdiMonitoring"}},
			"hosts":        []map[string]any{{"hostid": "10"}},
		}},
	}}
	c, done := newClient(t, f, "zabbix")
	defer done()
	ctx := context.Background()
	if err := c.Login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}
	hosts, err := c.HostsWithObjects(ctx, "3")
	if err != nil {
		t.Fatalf("hosts: %v", err)
	}
	if len(hosts) != 1 {
		t.Fatalf("len=%d", len(hosts))
	}
	h := hosts[0]
	if h.Status != 1 || h.Interface == nil || h.Interface.ID != "77" {
		t.Fatalf("host=%+v", h)
	}
	if v, ok := h.Macro(inventory.MacroCommunity); !ok || v != "public" {
		t.Fatalf("macro=%q ok=%v", v, ok)
	}
	if got := h.TriggersByFlag()["cSdiMonitoring"]; len(got) != 1 || got[0].Status != 1 {
		t.Fatalf("triggers=%+v", got)
	}
	if got := h.ItemsByApplication()["cSdiMonitoring"]; len(got) != 1 || got[0].ID != "900" {
		t.Fatalf("items=%+v", got)
	}
	if f.calls[1].Auth != "tok1" {
		t.Fatalf("auth=%q", f.calls[1].Auth)
	}
}

func TestClient_ReLoginOnSessionTerminated(t *testing.T) {
	f := &fakeZabbix{
		expireAt: "hostgroup.get",
		results:  map[string]any{"hostgroup.get": []map[string]any{{"groupid": 7}}},
	}
	c, done := newClient(t, f, "zabbix")
	defer done()
	ctx := context.Background()
	_ = c.Login(ctx)
	id, err := c.HostGroupID(ctx, "VMware")
	if err != nil || id != "7" {
		t.Fatalf("id=%q err=%v", id, err)
	}
	if f.logins != 2 {
		t.Fatalf("logins=%d want=2", f.logins)
	}
}

func TestClient_CreateHostPayload(t *testing.T) {
	f := &fakeZabbix{results: map[string]any{
		"host.create":        map[string]any{"hostids": []string{"42"}},
		"application.create": map[string]any{"applicationids": []string{"1"}},
	}}
	c, done := newClient(t, f, "zabbix")
	defer done()
	ctx := context.Background()
	_ = c.Login(ctx)

	id, err := c.CreateHost(ctx, inventory.HostSpec{
		Host: "VS-1", Name: "web01", GroupID: "3", TemplateID: "4", ProxyID: "5", IP: "10.0.0.5",
	})
	if err != nil || id != "42" {
		t.Fatalf("id=%q err=%v", id, err)
	}
	var params struct {
		Interfaces []struct {
			Type    int            `json:"type"`
			Port    string         `json:"port"`
			IP      string         `json:"ip"`
			Details map[string]any `json:"details"`
		} `json:"interfaces"`
		ProxyHostID string `json:"proxy_hostid"`
	}
	if err := json.Unmarshal(f.calls[1].Params, &params); err != nil {
		t.Fatalf("decode: %v", err)
	}
	iface := params.Interfaces[0]
	if iface.Type != 2 || iface.Port != "161" || iface.IP != "10.0.0.5" || iface.Details["community"] != "{$SNMP_COMMUNITY}" {
		t.Fatalf("interface=%+v", iface)
	}
	if params.ProxyHostID != "5" {
		t.Fatalf("proxy=%q", params.ProxyHostID)
	}
}

func TestClient_RejectedError(t *testing.T) {
	c, done := newClient(t, &fakeZabbix{results: map[string]any{}}, "zabbix")
	defer done()
	ctx := context.Background()
	_ = c.Login(ctx)
	err := c.DeleteHost(ctx, "10")
	if !syncerr.IsRejected(err) {
		t.Fatalf("err=%v want rejected", err)
	}
}

func TestClient_CountProblemTriggers(t *testing.T) {
	f := &fakeZabbix{results: map[string]any{"trigger.get": "3"}}
	c, done := newClient(t, f, "zabbix")
	defer done()
	ctx := context.Background()
	_ = c.Login(ctx)
	n, err := c.CountProblemTriggers(ctx, "3", inventory.FlagMonitoring)
	if err != nil || n != 3 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}
