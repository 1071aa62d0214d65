package simple

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AnishMulay/sandkernel/internal/communication"
	grpccomm "github.com/AnishMulay/sandkernel/internal/communication/grpc"
	"github.com/AnishMulay/sandkernel/internal/kernel"
	"github.com/AnishMulay/sandkernel/internal/log_service"
	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
	srv "github.com/AnishMulay/sandkernel/internal/syscall_server"
	sys "github.com/AnishMulay/sandkernel/internal/syscall_service"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"
)

type SimpleSyscallServer struct {
	comm    *grpccomm.GRPCCommunicator
	kernel  *kernel.Kernel
	storage ss.StorageService
	limiter *rate.Limiter
	ls      log_service.LogService
}

// NewSimpleSyscallServer wires a kernel to comm. A nil limiter admits every
// request.
func NewSimpleSyscallServer(
	comm *grpccomm.GRPCCommunicator,
	k *kernel.Kernel,
	storage ss.StorageService,
	limiter *rate.Limiter,
	ls log_service.LogService,
) *SimpleSyscallServer {
	return &SimpleSyscallServer{
		comm:    comm,
		kernel:  k,
		storage: storage,
		limiter: limiter,
		ls:      ls,
	}
}

func (s *SimpleSyscallServer) Address() string {
	return s.comm.Address()
}

func (s *SimpleSyscallServer) Start() error {
	s.ls.Info(log_service.LogEvent{Message: "Starting Simple Syscall Server"})

	s.registerPayloads()

	if err := s.storage.Start(); err != nil {
		return fmt.Errorf("%w: storage: %w", communication.ErrServerStartFailed, err)
	}

	if err := s.comm.Start(s.handleMessage); err != nil {
		_ = s.storage.Stop()
		return fmt.Errorf("%w: %w", communication.ErrServerStartFailed, err)
	}
	return nil
}

func (s *SimpleSyscallServer) Stop() error {
	s.ls.Info(log_service.LogEvent{Message: "Stopping Simple Syscall Server"})

	err := s.comm.Stop()
	if serr := s.storage.Stop(); serr != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to stop storage service",
			Metadata: map[string]any{"error": serr.Error()},
		})
		err = multierr.Append(err, serr)
	}
	return err
}

func (s *SimpleSyscallServer) registerPayloads() {
	s.comm.RegisterPayloadType(srv.MsgKernelSpawn, srv.SpawnRequest{})
	s.comm.RegisterPayloadType(srv.MsgKernelExit, srv.ExitRequest{})
	s.comm.RegisterPayloadType(srv.MsgKernelHalt, srv.HaltRequest{})
	s.comm.RegisterPayloadType(srv.MsgKernelCreat, srv.CreatRequest{})
	s.comm.RegisterPayloadType(srv.MsgKernelOpen, srv.OpenRequest{})
	s.comm.RegisterPayloadType(srv.MsgKernelRead, srv.ReadRequest{})
	s.comm.RegisterPayloadType(srv.MsgKernelWrite, srv.WriteRequest{})
	s.comm.RegisterPayloadType(srv.MsgKernelClose, srv.CloseRequest{})
	s.comm.RegisterPayloadType(srv.MsgKernelUnlink, srv.UnlinkRequest{})
}

// Central Router for all incoming messages
func (s *SimpleSyscallServer) handleMessage(ctx context.Context, msg communication.Message) (*communication.Response, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.ls.Warn(log_service.LogEvent{
			Message:  "Rate limit exceeded",
			Metadata: map[string]any{"type": msg.Type, "from": msg.From},
		})
		return &communication.Response{
			Code: communication.CodeUnavailable,
			Body: []byte("rate limit exceeded"),
		}, nil
	}

	switch msg.Type {
	case srv.MsgKernelSpawn:
		p, err := s.kernel.Spawn()
		if err != nil {
			return &communication.Response{
				Code: communication.CodeUnavailable,
				Body: []byte(err.Error()),
			}, nil
		}
		return s.respond(srv.Result{Result: p.PID()})

	case srv.MsgKernelExit:
		req, ok := msg.Payload.(srv.ExitRequest)
		if !ok {
			return badPayload(msg)
		}
		return s.exit(req)

	case srv.MsgKernelHalt:
		req, ok := msg.Payload.(srv.HaltRequest)
		if !ok {
			return badPayload(msg)
		}
		return s.syscall(ctx, req.PID, kernel.SyscallHalt, kernel.Args{})

	case srv.MsgKernelCreat:
		req, ok := msg.Payload.(srv.CreatRequest)
		if !ok {
			return badPayload(msg)
		}
		return s.syscall(ctx, req.PID, kernel.SyscallCreat, kernel.Args{Name: req.Name})

	case srv.MsgKernelOpen:
		req, ok := msg.Payload.(srv.OpenRequest)
		if !ok {
			return badPayload(msg)
		}
		return s.syscall(ctx, req.PID, kernel.SyscallOpen, kernel.Args{Name: req.Name})

	case srv.MsgKernelRead:
		req, ok := msg.Payload.(srv.ReadRequest)
		if !ok {
			return badPayload(msg)
		}
		return s.read(ctx, req)

	case srv.MsgKernelWrite:
		req, ok := msg.Payload.(srv.WriteRequest)
		if !ok {
			return badPayload(msg)
		}
		return s.syscall(ctx, req.PID, kernel.SyscallWrite, kernel.Args{FD: req.FD, Buf: req.Data, Count: req.Count})

	case srv.MsgKernelClose:
		req, ok := msg.Payload.(srv.CloseRequest)
		if !ok {
			return badPayload(msg)
		}
		return s.syscall(ctx, req.PID, kernel.SyscallClose, kernel.Args{FD: req.FD})

	case srv.MsgKernelUnlink:
		req, ok := msg.Payload.(srv.UnlinkRequest)
		if !ok {
			return badPayload(msg)
		}
		return s.syscall(ctx, req.PID, kernel.SyscallUnlink, kernel.Args{Name: req.Name})

	default:
		return &communication.Response{
			Code: communication.CodeBadRequest,
			Body: []byte("unknown message type: " + msg.Type),
		}, nil
	}
}

func (s *SimpleSyscallServer) syscall(ctx context.Context, pid, num int, args kernel.Args) (*communication.Response, error) {
	p, err := s.kernel.Process(pid)
	if err != nil {
		return s.respond(srv.Result{Result: sys.ToErrno(err)})
	}
	return s.respond(srv.Result{Result: p.HandleSyscall(ctx, num, args)})
}

func (s *SimpleSyscallServer) exit(req srv.ExitRequest) (*communication.Response, error) {
	p, err := s.kernel.Process(req.PID)
	if err != nil {
		return s.respond(srv.Result{Result: sys.ToErrno(err)})
	}
	if err := p.Exit(req.Status); errors.Is(err, kernel.ErrProcessExited) {
		return s.respond(srv.Result{Result: sys.ToErrno(sys.ErrNoProcess)})
	}
	// close failures are logged by Exit and do not undo it
	return s.respond(srv.Result{Result: req.Status, Exited: true})
}

func (s *SimpleSyscallServer) read(ctx context.Context, req srv.ReadRequest) (*communication.Response, error) {
	p, err := s.kernel.Process(req.PID)
	if err != nil {
		return s.respond(srv.Result{Result: sys.ToErrno(err)})
	}

	count := min(req.Count, srv.MaxTransferSize)
	var buf []byte
	if count > 0 {
		buf = make([]byte, count)
	}

	n := p.HandleSyscall(ctx, kernel.SyscallRead, kernel.Args{FD: req.FD, Buf: buf, Count: count})
	res := srv.Result{Result: n}
	if n > 0 {
		res.Data = buf[:n]
	}
	return s.respond(res)
}

func (s *SimpleSyscallServer) respond(res srv.Result) (*communication.Response, error) {
	body, err := json.Marshal(res)
	if err != nil {
		return &communication.Response{
			Code: communication.CodeInternal,
			Body: []byte("failed to marshal response: " + err.Error()),
		}, nil
	}
	return &communication.Response{
		Code: communication.CodeOK,
		Body: body,
	}, nil
}

func badPayload(msg communication.Message) (*communication.Response, error) {
	return &communication.Response{
		Code: communication.CodeBadRequest,
		Body: []byte("unexpected payload for " + msg.Type),
	}, nil
}

var _ srv.SyscallServer = (*SimpleSyscallServer)(nil)
