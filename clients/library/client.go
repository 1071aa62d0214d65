package sandlib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AnishMulay/sandkernel/internal/communication"
	grpccomm "github.com/AnishMulay/sandkernel/internal/communication/grpc"
	srv "github.com/AnishMulay/sandkernel/internal/syscall_server"
	sys "github.com/AnishMulay/sandkernel/internal/syscall_service"
)

var ErrClientNotConfigured = errors.New("kernel client is not configured")

func NewKernelClient(serverAddr string, comm *grpccomm.GRPCCommunicator) *KernelClient {
	return &KernelClient{
		ServerAddr: serverAddr,
		Comm:       comm,
		From:       "sandlib",
	}
}

// Spawn starts a fresh process on the kernel.
func (c *KernelClient) Spawn(ctx context.Context) (*Process, error) {
	res, err := c.call(ctx, "spawn", srv.MsgKernelSpawn, srv.SpawnRequest{})
	if err != nil {
		return nil, err
	}
	return &Process{PID: res.Result, client: c}, nil
}

// Attach returns a handle on an already running process.
func (c *KernelClient) Attach(pid int) *Process {
	return &Process{PID: pid, client: c}
}

func (p *Process) Creat(ctx context.Context, name string) (int, error) {
	return p.syscall(ctx, "creat", srv.MsgKernelCreat, srv.CreatRequest{PID: p.PID, Name: name})
}

func (p *Process) Open(ctx context.Context, name string) (int, error) {
	return p.syscall(ctx, "open", srv.MsgKernelOpen, srv.OpenRequest{PID: p.PID, Name: name})
}

// Read returns at most count bytes; an empty slice means end of file.
func (p *Process) Read(ctx context.Context, fd int, count int) ([]byte, error) {
	res, err := p.client.call(ctx, "read", srv.MsgKernelRead, srv.ReadRequest{PID: p.PID, FD: fd, Count: count})
	if err != nil {
		return nil, err
	}
	if err := sys.ErrorFromErrno(res.Result); err != nil {
		return nil, fmt.Errorf("read fd %d: %w", fd, err)
	}
	return res.Data, nil
}

func (p *Process) Write(ctx context.Context, fd int, data []byte) (int, error) {
	return p.syscall(ctx, "write", srv.MsgKernelWrite, srv.WriteRequest{PID: p.PID, FD: fd, Data: data, Count: len(data)})
}

func (p *Process) Close(ctx context.Context, fd int) error {
	_, err := p.syscall(ctx, "close", srv.MsgKernelClose, srv.CloseRequest{PID: p.PID, FD: fd})
	return err
}

func (p *Process) Unlink(ctx context.Context, name string) error {
	_, err := p.syscall(ctx, "unlink", srv.MsgKernelUnlink, srv.UnlinkRequest{PID: p.PID, Name: name})
	return err
}

// Exit ends the process, closing everything it still holds.
func (p *Process) Exit(ctx context.Context, status int) error {
	res, err := p.client.call(ctx, "exit", srv.MsgKernelExit, srv.ExitRequest{PID: p.PID, Status: status})
	if err != nil {
		return err
	}
	if res.Exited {
		return nil
	}
	if err := sys.ErrorFromErrno(res.Result); err != nil {
		return fmt.Errorf("exit: %w", err)
	}
	return fmt.Errorf("exit: process %d still running", p.PID)
}

func (p *Process) Halt(ctx context.Context) error {
	_, err := p.syscall(ctx, "halt", srv.MsgKernelHalt, srv.HaltRequest{PID: p.PID})
	return err
}

func (p *Process) syscall(ctx context.Context, op, msgType string, payload any) (int, error) {
	res, err := p.client.call(ctx, op, msgType, payload)
	if err != nil {
		return -1, err
	}
	if err := sys.ErrorFromErrno(res.Result); err != nil {
		return -1, fmt.Errorf("%s: %w", op, err)
	}
	return res.Result, nil
}

func (c *KernelClient) call(ctx context.Context, op, msgType string, payload any) (srv.Result, error) {
	if c == nil || c.Comm == nil || c.ServerAddr == "" {
		return srv.Result{}, ErrClientNotConfigured
	}

	resp, err := c.Comm.Send(ctx, c.ServerAddr, communication.Message{
		From:    c.From,
		Type:    msgType,
		Payload: payload,
	})
	if err != nil {
		return srv.Result{}, fmt.Errorf("%s failed: %w", op, err)
	}
	if resp.Code != communication.CodeOK {
		return srv.Result{}, responseError(op, resp)
	}

	var res srv.Result
	if err := json.Unmarshal(resp.Body, &res); err != nil {
		return srv.Result{}, fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return res, nil
}

func responseError(op string, resp *communication.Response) error {
	body := strings.TrimSpace(string(resp.Body))
	if body == "" {
		body = string(resp.Code)
	}
	return fmt.Errorf("%s failed (%s): %s", op, resp.Code, body)
}
