package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	sandlib "github.com/AnishMulay/sandkernel/clients/library"
	grpccomm "github.com/AnishMulay/sandkernel/internal/communication/grpc"
	"github.com/AnishMulay/sandkernel/internal/log_service/zaplog"
	sys "github.com/AnishMulay/sandkernel/internal/syscall_service"
)

func main() {
	serverAddr := os.Getenv("SANDKERNEL_ADDR")
	if serverAddr == "" {
		serverAddr = "127.0.0.1:8080"
	}

	ls, err := zaplog.NewZapLogService("smoke", "warn", false)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	comm := grpccomm.NewGRPCCommunicator("", ls)
	defer func() { _ = comm.Stop() }()
	client := sandlib.NewKernelClient(serverAddr, comm)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := client.Spawn(ctx)
	if err != nil {
		log.Fatalf("Spawn failed on %s: %v", serverAddr, err)
	}
	log.Printf("PASS: Spawn returned pid=%d", p.PID)

	name := fmt.Sprintf("smoke-%d.txt", time.Now().UnixNano())

	fd, err := p.Creat(ctx, name)
	if err != nil {
		log.Fatalf("Creat(%s) failed: %v", name, err)
	}
	log.Printf("PASS: Creat returned fd=%d for %s", fd, name)

	expectWrite(ctx, p, fd, "first write\n")
	expectOK("Close", p.Close(ctx, fd))

	fd, err = p.Open(ctx, name)
	if err != nil {
		log.Fatalf("Open(%s) failed: %v", name, err)
	}
	log.Printf("PASS: Open returned fd=%d", fd)

	expectRead(ctx, p, fd, 2, "fi")
	expectRead(ctx, p, fd, 50, "rst write\n")
	expectWrite(ctx, p, fd, "second write\n")
	expectOK("Close", p.Close(ctx, fd))

	fd, err = p.Open(ctx, name)
	if err != nil {
		log.Fatalf("reopen failed: %v", err)
	}
	expectRead(ctx, p, fd, 100, "first write\nsecond write\n")
	expectOK("Close", p.Close(ctx, fd))

	expectErr("Close(unopened)", p.Close(ctx, 7), sys.ErrInvalidDescriptor)
	_, err = p.Write(ctx, 0, []byte("x"))
	expectErr("Write(stdin)", err, sys.ErrNotWritable)
	_, err = p.Read(ctx, 100, 4)
	expectErr("Read(out of range)", err, sys.ErrInvalidDescriptor)

	expectOK("Unlink", p.Unlink(ctx, name))
	_, err = p.Open(ctx, name)
	expectErr("Open(unlinked)", err, sys.ErrFileNotFound)
	expectErr("Unlink(again)", p.Unlink(ctx, name), sys.ErrFileNotFound)

	expectOK("Exit", p.Exit(ctx, 0))
	log.Printf("All file syscall checks passed against %s", serverAddr)
}

func expectWrite(ctx context.Context, p *sandlib.Process, fd int, data string) {
	n, err := p.Write(ctx, fd, []byte(data))
	if err != nil {
		log.Fatalf("Write(fd=%d) failed: %v", fd, err)
	}
	if n != len(data) {
		log.Fatalf("Write(fd=%d) wrote %d bytes, want %d", fd, n, len(data))
	}
	log.Printf("PASS: Write(fd=%d) wrote %d bytes", fd, n)
}

func expectRead(ctx context.Context, p *sandlib.Process, fd, count int, want string) {
	data, err := p.Read(ctx, fd, count)
	if err != nil {
		log.Fatalf("Read(fd=%d, %d) failed: %v", fd, count, err)
	}
	if string(data) != want {
		log.Fatalf("Read(fd=%d, %d) = %q, want %q", fd, count, data, want)
	}
	log.Printf("PASS: Read(fd=%d, %d) returned %q", fd, count, data)
}

func expectOK(op string, err error) {
	if err != nil {
		log.Fatalf("%s failed: %v", op, err)
	}
	log.Printf("PASS: %s", op)
}

func expectErr(op string, err, want error) {
	if !errors.Is(err, want) {
		log.Fatalf("%s: got %v, want %v", op, err, want)
	}
	log.Printf("PASS: %s failed as expected: %v", op, err)
}
