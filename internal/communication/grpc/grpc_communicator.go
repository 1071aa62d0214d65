package grpccomm

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"reflect"
	"sync"

	"github.com/AnishMulay/sandkernel/internal/communication"
	"github.com/AnishMulay/sandkernel/internal/log_service"
	"go.uber.org/multierr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type GRPCCommunicator struct {
	listenAddress string
	handler       communication.MessageHandler
	grpcServer    *grpc.Server
	ls            log_service.LogService

	clientLock sync.RWMutex
	clients    map[string]*grpc.ClientConn

	typesLock    sync.RWMutex
	payloadTypes map[string]reflect.Type

	stopped   bool
	stopMutex sync.Mutex
}

func NewGRPCCommunicator(addr string, ls log_service.LogService) *GRPCCommunicator {
	return &GRPCCommunicator{
		listenAddress: addr,
		ls:            ls,
		clients:       make(map[string]*grpc.ClientConn),
		payloadTypes:  make(map[string]reflect.Type),
	}
}

// RegisterPayloadType makes incoming messages of msgType decode into values
// shaped like payload.
func (c *GRPCCommunicator) RegisterPayloadType(msgType string, payload any) {
	t := reflect.TypeOf(payload)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	c.typesLock.Lock()
	c.payloadTypes[msgType] = t
	c.typesLock.Unlock()
}

// Address is the bound address once Start has run, so ":0" resolves to the
// real port.
func (c *GRPCCommunicator) Address() string {
	return c.listenAddress
}

func (c *GRPCCommunicator) Start(handler communication.MessageHandler) error {
	c.ls.Info(log_service.LogEvent{
		Message:  "Starting GRPC communicator",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	lis, err := net.Listen("tcp", c.listenAddress)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to listen on address",
			Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
		})
		return fmt.Errorf("%w: %w", communication.ErrGRPCListenFailed, err)
	}
	c.listenAddress = lis.Addr().String()

	c.handler = handler
	c.grpcServer = grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	c.grpcServer.RegisterService(&messageServiceDesc, &grpcServer{comm: c})

	c.ls.Info(log_service.LogEvent{
		Message:  "GRPC communicator started successfully",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	go func() {
		if err := c.grpcServer.Serve(lis); err != nil {
			c.ls.Error(log_service.LogEvent{
				Message:  "GRPC server error",
				Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
			})
		}
	}()
	return nil
}

func (c *GRPCCommunicator) Stop() error {
	c.stopMutex.Lock()
	defer c.stopMutex.Unlock()

	if c.stopped {
		c.ls.Debug(log_service.LogEvent{
			Message:  "GRPC communicator already stopped, skipping",
			Metadata: map[string]any{"address": c.listenAddress},
		})
		return nil
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "Stopping GRPC communicator",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	if c.grpcServer != nil {
		c.grpcServer.GracefulStop()
	}

	var err error
	c.clientLock.Lock()
	for addr, conn := range c.clients {
		err = multierr.Append(err, conn.Close())
		delete(c.clients, addr)
	}
	c.clientLock.Unlock()

	c.stopped = true
	if err != nil {
		c.ls.Warn(log_service.LogEvent{
			Message:  "Closing GRPC clients failed",
			Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
		})
		return fmt.Errorf("%w: %w", communication.ErrServerStopFailed, err)
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "GRPC communicator stopped successfully",
		Metadata: map[string]any{"address": c.listenAddress},
	})
	return nil
}

func (c *GRPCCommunicator) client(to string) (*grpc.ClientConn, error) {
	c.clientLock.RLock()
	conn, ok := c.clients[to]
	c.clientLock.RUnlock()
	if ok {
		return conn, nil
	}

	c.clientLock.Lock()
	defer c.clientLock.Unlock()

	if conn, ok := c.clients[to]; ok {
		return conn, nil
	}

	c.ls.Debug(log_service.LogEvent{
		Message:  "Creating new GRPC client",
		Metadata: map[string]any{"to": to},
	})

	conn, err := grpc.NewClient(to,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, err
	}
	c.clients[to] = conn
	return conn, nil
}

func (c *GRPCCommunicator) Send(ctx context.Context, to string, msg communication.Message) (*communication.Response, error) {
	c.ls.Debug(log_service.LogEvent{
		Message:  "Sending GRPC message",
		Metadata: map[string]any{"to": to, "type": msg.Type, "from": msg.From},
	})

	conn, err := c.client(to)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to create GRPC client",
			Metadata: map[string]any{"to": to, "error": err.Error()},
		})
		return nil, fmt.Errorf("%w: %w", communication.ErrClientCreateFailed, err)
	}

	req := &messageRequest{From: msg.From, Type: msg.Type}
	if msg.Payload != nil {
		req.Payload, err = json.Marshal(msg.Payload)
		if err != nil {
			c.ls.Error(log_service.LogEvent{
				Message:  "Failed to marshal payload",
				Metadata: map[string]any{"to": to, "type": msg.Type, "error": err.Error()},
			})
			return nil, fmt.Errorf("%w: %w", communication.ErrPayloadMarshalFailed, err)
		}
	}

	resp := new(messageResponse)
	if err := conn.Invoke(ctx, sendMessageMethod, req, resp); err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to send GRPC message",
			Metadata: map[string]any{"to": to, "type": msg.Type, "error": err.Error()},
		})
		return nil, fmt.Errorf("%w: %w", communication.ErrMessageSendFailed, err)
	}

	c.ls.Debug(log_service.LogEvent{
		Message:  "GRPC message sent successfully",
		Metadata: map[string]any{"to": to, "type": msg.Type, "responseCode": resp.Code},
	})

	return &communication.Response{
		Code:    communication.SandCode(resp.Code),
		Body:    resp.Body,
		Headers: resp.Headers,
	}, nil
}

func (c *GRPCCommunicator) decodePayload(msgType string, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	c.typesLock.RLock()
	payloadType, ok := c.payloadTypes[msgType]
	c.typesLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", communication.ErrUnknownMessageType, msgType)
	}

	payload := reflect.New(payloadType).Interface()
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("%w: %w", communication.ErrPayloadUnmarshalFailed, err)
	}
	return reflect.ValueOf(payload).Elem().Interface(), nil
}

type grpcServer struct {
	comm *GRPCCommunicator
}

func (s *grpcServer) SendMessage(ctx context.Context, req *messageRequest) (*messageResponse, error) {
	if s.comm.handler == nil {
		return nil, communication.ErrHandlerNotSet
	}

	payload, err := s.comm.decodePayload(req.Type, req.Payload)
	if err != nil {
		s.comm.ls.Warn(log_service.LogEvent{
			Message:  "Rejecting undecodable message",
			Metadata: map[string]any{"type": req.Type, "from": req.From, "error": err.Error()},
		})
		return &messageResponse{
			Code: string(communication.CodeBadRequest),
			Body: []byte(err.Error()),
		}, nil
	}

	resp, err := s.comm.handler(ctx, communication.Message{
		From:    req.From,
		Type:    req.Type,
		Payload: payload,
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", communication.ErrMessageHandlerFailed, err)
		s.comm.ls.Error(log_service.LogEvent{
			Message:  "Message handler failed",
			Metadata: map[string]any{"type": req.Type, "error": err.Error()},
		})

		return &messageResponse{
			Code: string(communication.CodeInternal),
			Body: []byte(err.Error()),
		}, nil
	}

	if resp == nil {
		return &messageResponse{
			Code: string(communication.CodeInternal),
			Body: []byte("handler returned nil response"),
		}, nil
	}

	return &messageResponse{
		Code:    string(resp.Code),
		Body:    resp.Body,
		Headers: resp.Headers,
	}, nil
}

var (
	_ communication.Communicator    = (*GRPCCommunicator)(nil)
	_ communication.PayloadRegistry = (*GRPCCommunicator)(nil)
)
