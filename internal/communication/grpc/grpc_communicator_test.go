package grpccomm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AnishMulay/sandkernel/internal/communication"
	"github.com/AnishMulay/sandkernel/internal/log_service/zaplog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRequest struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

func startServer(t *testing.T, handler communication.MessageHandler) *GRPCCommunicator {
	t.Helper()
	srv := NewGRPCCommunicator("127.0.0.1:0", zaplog.NewNop())
	srv.RegisterPayloadType("echo", echoRequest{})
	require.NoError(t, srv.Start(handler))
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func newClient(t *testing.T) *GRPCCommunicator {
	t.Helper()
	c := NewGRPCCommunicator("", zaplog.NewNop())
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func TestGRPCCommunicator_RoundTrip(t *testing.T) {
	var got communication.Message
	srv := startServer(t, func(ctx context.Context, msg communication.Message) (*communication.Response, error) {
		got = msg
		req := msg.Payload.(echoRequest)
		return &communication.Response{
			Code:    communication.CodeOK,
			Body:    []byte(req.Text),
			Headers: map[string]string{"count": "ok"},
		}, nil
	})
	assert.NotEqual(t, "127.0.0.1:0", srv.Address())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := newClient(t).Send(ctx, srv.Address(), communication.Message{
		From:    "test",
		Type:    "echo",
		Payload: echoRequest{Text: "hello", Count: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, communication.CodeOK, resp.Code)
	assert.Equal(t, "hello", string(resp.Body))
	assert.Equal(t, "ok", resp.Headers["count"])

	assert.Equal(t, "test", got.From)
	assert.Equal(t, echoRequest{Text: "hello", Count: 3}, got.Payload)
}

func TestGRPCCommunicator_ResponseCodes(t *testing.T) {
	srv := startServer(t, func(ctx context.Context, msg communication.Message) (*communication.Response, error) {
		switch msg.Type {
		case "fail":
			return nil, errors.New("boom")
		case "nil":
			return nil, nil
		}
		return &communication.Response{Code: communication.CodeOK}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := newClient(t)

	tests := []struct {
		name string
		msg  communication.Message
		want communication.SandCode
		body string
	}{
		{"no payload", communication.Message{Type: "ping"}, communication.CodeOK, ""},
		{"handler error", communication.Message{Type: "fail"}, communication.CodeInternal, "message handler failed: boom"},
		{"nil response", communication.Message{Type: "nil"}, communication.CodeInternal, "handler returned nil response"},
		{"unregistered payload", communication.Message{Type: "mystery", Payload: map[string]int{"a": 1}}, communication.CodeBadRequest, ""},
		{"malformed payload", communication.Message{Type: "echo", Payload: "not an object"}, communication.CodeBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Send(ctx, srv.Address(), tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, string(resp.Body))
			}
		})
	}
}

func TestGRPCCommunicator_SendToStoppedServer(t *testing.T) {
	srv := NewGRPCCommunicator("127.0.0.1:0", zaplog.NewNop())
	require.NoError(t, srv.Start(func(ctx context.Context, msg communication.Message) (*communication.Response, error) {
		return &communication.Response{Code: communication.CodeOK}, nil
	}))
	addr := srv.Address()
	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop(), "second stop is a no-op")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := newClient(t).Send(ctx, addr, communication.Message{Type: "ping"})
	assert.ErrorIs(t, err, communication.ErrMessageSendFailed)
}

func TestGRPCCommunicator_ListenFailure(t *testing.T) {
	srv := NewGRPCCommunicator("256.0.0.1:bad", zaplog.NewNop())
	err := srv.Start(nil)
	assert.ErrorIs(t, err, communication.ErrGRPCListenFailed)
}
