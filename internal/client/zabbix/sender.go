package zabbix

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"time"

	"vfzsync/internal/instrument"
	"vfzsync/internal/inventory"
	"vfzsync/internal/syncerr"
)

const (
	DefaultSenderPort = 10051
	senderSystem      = "zabbix-sender"
	maxResponseSize   = 1 << 20
)

var senderHeader = []byte("ZBXD\x01")

// Sender pushes trapper values using the Zabbix sender protocol.
type Sender struct {
	Addr     string
	Timeout  time.Duration
	Recorder *instrument.Recorder

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// SendResult is the parsed "info" line of a sender response.
type SendResult struct {
	Processed int
	Failed    int
	Total     int
	Info      string
}

func NewSender(host string, port int, timeout time.Duration, recorder *instrument.Recorder) *Sender {
	if port <= 0 {
		port = DefaultSenderPort
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sender{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Timeout:  timeout,
		Recorder: recorder,
	}
}

type senderRequest struct {
	Request string             `json:"request"`
	Data    []inventory.Metric `json:"data"`
	Clock   int64              `json:"clock"`
}

type senderResponse struct {
	Response string `json:"response"`
	Info     string `json:"info"`
}

func (s *Sender) Send(ctx context.Context, metrics []inventory.Metric) (SendResult, error) {
	if len(metrics) == 0 {
		return SendResult{}, nil
	}
	var res SendResult
	err := s.Recorder.Call(ctx, senderSystem, "sender.data", func(ctx context.Context) error {
		var err error
		res, err = s.send(ctx, metrics)
		return err
	})
	return res, err
}

func (s *Sender) send(ctx context.Context, metrics []inventory.Metric) (SendResult, error) {
	payload, err := json.Marshal(senderRequest{
		Request: "sender data",
		Data:    metrics,
		Clock:   time.Now().Unix(),
	})
	if err != nil {
		return SendResult{}, syncerr.Rejected(senderSystem, "encode", err)
	}

	dial := s.dial
	if dial == nil {
		d := &net.Dialer{Timeout: s.Timeout}
		dial = d.DialContext
	}
	conn, err := dial(ctx, "tcp", s.Addr)
	if err != nil {
		return SendResult{}, syncerr.Transport(senderSystem, "dial", err)
	}
	defer conn.Close()
	if s.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.Timeout))
	}

	if _, err := conn.Write(EncodePacket(payload)); err != nil {
		return SendResult{}, syncerr.Transport(senderSystem, "write", err)
	}
	body, err := ReadPacket(conn)
	if err != nil {
		return SendResult{}, syncerr.Transport(senderSystem, "read", err)
	}
	var resp senderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return SendResult{}, syncerr.Rejected(senderSystem, "decode", err)
	}
	res := ParseInfo(resp.Info)
	if resp.Response != "success" {
		return res, syncerr.Rejected(senderSystem, "sender.data", fmt.Errorf("response %q: %s", resp.Response, resp.Info))
	}
	return res, nil
}

// EncodePacket frames payload with the ZBXD header and little-endian length.
func EncodePacket(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(senderHeader) + 8 + len(payload))
	buf.Write(senderHeader)
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(payload)))
	buf.Write(size[:])
	buf.Write(payload)
	return buf.Bytes()
}

// ReadPacket reads one framed packet and returns its payload.
func ReadPacket(r io.Reader) ([]byte, error) {
	head := make([]byte, len(senderHeader)+8)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	if !bytes.Equal(head[:4], senderHeader[:4]) {
		return nil, errors.New("invalid packet header")
	}
	size := binary.LittleEndian.Uint64(head[len(senderHeader):])
	if size > maxResponseSize {
		return nil, fmt.Errorf("packet too large: %d", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

var infoPattern = regexp.MustCompile(`processed:\s*(\d+);\s*failed:\s*(\d+);\s*total:\s*(\d+)`)

func ParseInfo(info string) SendResult {
	res := SendResult{Info: info}
	m := infoPattern.FindStringSubmatch(info)
	if len(m) != 4 {
		return res
	}
	res.Processed, _ = strconv.Atoi(m[1])
	res.Failed, _ = strconv.Atoi(m[2])
	res.Total, _ = strconv.Atoi(m[3])
	return res
}
