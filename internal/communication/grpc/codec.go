package grpccomm

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
)

const (
	serviceName       = "sandkernel.MessageService"
	sendMessageMethod = "/" + serviceName + "/SendMessage"
)

// jsonCodec carries messages as JSON so the service needs no generated code.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}

type messageRequest struct {
	From    string          `json:"from"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type messageResponse struct {
	Code    string            `json:"code"`
	Body    []byte            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type messageServiceServer interface {
	SendMessage(ctx context.Context, req *messageRequest) (*messageResponse, error)
}

var messageServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*messageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendMessage",
			Handler:    sendMessageHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sandkernel/communication",
}

func sendMessageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(messageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(messageServiceServer).SendMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: sendMessageMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(messageServiceServer).SendMessage(ctx, req.(*messageRequest))
	}
	return interceptor(ctx, in, info, handler)
}
