package zabbix

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"vfzsync/internal/inventory"
	"vfzsync/internal/syncerr"
)

func pipeSender(t *testing.T, handle func(req senderRequest) senderResponse) *Sender {
	t.Helper()
	return &Sender{
		Addr:    "proxy:10051",
		Timeout: time.Second,
		dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			client, server := net.Pipe()
			go func() {
				defer server.Close()
				body, err := ReadPacket(server)
				if err != nil {
					return
				}
				var req senderRequest
				_ = json.Unmarshal(body, &req)
				out, _ := json.Marshal(handle(req))
				_, _ = server.Write(EncodePacket(out))
			}()
			return client, nil
		},
	}
}

func TestSender_Send(t *testing.T) {
	var got senderRequest
	s := pipeSender(t, func(req senderRequest) senderResponse {
		got = req
		return senderResponse{Response: "success", Info: "processed: 1; failed: 0; total: 1; seconds spent: 0.000055"}
	})
	res, err := s.Send(context.Background(), []inventory.Metric{{Host: "VS-1", Key: "trigger.status[cSdiMonitoring]", Value: "0"}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Processed != 1 || res.Failed != 0 || res.Total != 1 {
		t.Fatalf("res=%+v", res)
	}
	if got.Request != "sender data" || len(got.Data) != 1 || got.Data[0].Key != "trigger.status[cSdiMonitoring]" {
		t.Fatalf("req=%+v", got)
	}
}

func TestSender_FailedResponse(t *testing.T) {
	s := pipeSender(t, func(req senderRequest) senderResponse {
		return senderResponse{Response: "failed", Info: "processed: 0; failed: 1; total: 1"}
	})
	res, err := s.Send(context.Background(), []inventory.Metric{{Host: "x", Key: "y", Value: "1"}})
	if !syncerr.IsRejected(err) {
		t.Fatalf("err=%v want rejected", err)
	}
	if res.Failed != 1 {
		t.Fatalf("res=%+v", res)
	}
}

func TestSender_EmptyIsNoop(t *testing.T) {
	s := &Sender{Addr: "127.0.0.1:1"}
	if _, err := s.Send(context.Background(), nil); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestParseInfo(t *testing.T) {
	res := ParseInfo("processed: 3; failed: 2; total: 5; seconds spent: 0.1")
	if res.Processed != 3 || res.Failed != 2 || res.Total != 5 {
		t.Fatalf("res=%+v", res)
	}
}
