package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	grpccomm "github.com/AnishMulay/sandkernel/internal/communication/grpc"
	"github.com/AnishMulay/sandkernel/internal/config"
	"github.com/AnishMulay/sandkernel/internal/console"
	"github.com/AnishMulay/sandkernel/internal/kernel"
	"github.com/AnishMulay/sandkernel/internal/log_service"
	locallog "github.com/AnishMulay/sandkernel/internal/log_service/localdisc"
	"github.com/AnishMulay/sandkernel/internal/log_service/zaplog"
	simpleserver "github.com/AnishMulay/sandkernel/internal/syscall_server/simple"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	errHalted    = errors.New("kernel halted")
	errSignalled = errors.New("received signal")
)

type Options struct {
	Config *config.Config

	// Console streams; nil means the process's own stdin and stdout.
	Stdin  io.Reader
	Stdout io.Writer
}

// Node is one kernel served over grpc.
type Node struct {
	server *simpleserver.SimpleSyscallServer
	kernel *kernel.Kernel
	ls     log_service.LogService

	halted  chan struct{}
	started chan struct{}
	closers []func() error
}

func Build(opts Options) (*Node, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Node{
		halted:  make(chan struct{}),
		started: make(chan struct{}),
	}

	// 1. Logging
	ls, err := n.buildLogService(cfg)
	if err != nil {
		return nil, err
	}
	n.ls = ls

	// 2. Storage
	storage, err := n.buildStorage(cfg)
	if err != nil {
		_ = n.close()
		return nil, err
	}

	// 3. Kernel
	stdin, stdout := opts.Stdin, opts.Stdout
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	var haltOnce sync.Once
	halter := kernel.HaltFunc(func() {
		haltOnce.Do(func() { close(n.halted) })
	})
	n.kernel, err = kernel.NewKernel(storage, console.NewConsole(stdin, stdout), cfg.Table.Capacity, halter, ls)
	if err != nil {
		_ = n.close()
		return nil, err
	}

	// 4. Server
	comm := grpccomm.NewGRPCCommunicator(cfg.ListenAddr, ls)
	limiter := rate.NewLimiter(rate.Limit(cfg.Server.RequestsPerSecond), cfg.Server.Burst)
	n.server = simpleserver.NewSimpleSyscallServer(comm, n.kernel, storage, limiter, ls)

	return n, nil
}

func (n *Node) buildLogService(cfg *config.Config) (log_service.LogService, error) {
	switch cfg.Log.Backend {
	case config.LogBackendLocalDisc:
		ls, err := locallog.NewLocalDiscLogService(cfg.Log.Dir, cfg.NodeID, cfg.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to open log dir: %w", err)
		}
		n.closers = append(n.closers, ls.Close)
		return ls, nil
	default:
		ls, err := zaplog.NewZapLogService(cfg.NodeID, cfg.Log.Level, cfg.Log.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to build zap logger: %w", err)
		}
		n.closers = append(n.closers, func() error {
			// syncing a terminal fails on some platforms
			_ = ls.Sync()
			return nil
		})
		return ls, nil
	}
}

func (n *Node) Kernel() *kernel.Kernel {
	return n.kernel
}

// Started is closed once Run has the server listening.
func (n *Node) Started() <-chan struct{} {
	return n.started
}

// Address is the bound listen address once Run has started the server.
func (n *Node) Address() string {
	return n.server.Address()
}

// Run serves until ctx is done, the process is signalled, or the kernel
// halts, then shuts everything down.
func (n *Node) Run(ctx context.Context) error {
	if err := n.server.Start(); err != nil {
		return multierr.Append(err, n.close())
	}
	n.ls.Info(log_service.LogEvent{
		Message:  "Kernel node serving",
		Metadata: map[string]any{"address": n.Address()},
	})
	close(n.started)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-n.halted:
			return errHalted
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)

		select {
		case s := <-sig:
			return fmt.Errorf("%w: %s", errSignalled, s)
		case <-gctx.Done():
			return nil
		}
	})

	err := g.Wait()
	if err != nil {
		n.ls.Info(log_service.LogEvent{
			Message:  "Kernel node shutting down",
			Metadata: map[string]any{"reason": err.Error()},
		})
	}
	if errors.Is(err, errHalted) || errors.Is(err, errSignalled) {
		err = nil
	}

	return multierr.Combine(err, n.server.Stop(), n.close())
}

func (n *Node) close() error {
	var err error
	for i := len(n.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, n.closers[i]())
	}
	n.closers = nil
	return err
}
