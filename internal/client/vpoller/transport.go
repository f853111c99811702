package vpoller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
)

// Transport exchanges one request for one reply.
type Transport interface {
	Exchange(ctx context.Context, payload []byte) ([]byte, error)
}

// ZMQTransport talks to a vPoller proxy over a ZeroMQ REQ socket. A fresh
// socket is used per attempt so a lost reply never wedges the REQ state
// machine.
type ZMQTransport struct {
	Endpoint string
	Retries  int
	Timeout  time.Duration
}

var errTimeout = errors.New("vpoller: no reply before timeout")

func (t *ZMQTransport) Exchange(ctx context.Context, payload []byte) ([]byte, error) {
	retries := t.Retries
	if retries <= 0 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reply, err := t.once(ctx, payload)
		if err == nil {
			return reply, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("vpoller %s: %d attempts: %w", t.Endpoint, retries, lastErr)
}

func (t *ZMQTransport) once(ctx context.Context, payload []byte) ([]byte, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sock := zmq4.NewReq(actx, zmq4.WithDialerTimeout(timeout))
	defer sock.Close()

	if err := sock.Dial(t.Endpoint); err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if err := sock.Send(zmq4.NewMsg(payload)); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	type result struct {
		msg zmq4.Msg
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := sock.Recv()
		done <- result{msg: msg, err: err}
	}()
	select {
	case <-actx.Done():
		return nil, errTimeout
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("recv: %w", r.err)
		}
		return r.msg.Bytes(), nil
	}
}
