package sandlib

import (
	grpccomm "github.com/AnishMulay/sandkernel/internal/communication/grpc"
)

// KernelClient talks to one kernel node.
type KernelClient struct {
	ServerAddr string
	Comm       *grpccomm.GRPCCommunicator
	From       string
}

// Process is a process spawned on the remote kernel. Descriptors it returns
// are only meaningful to that process.
type Process struct {
	PID    int
	client *KernelClient
}
