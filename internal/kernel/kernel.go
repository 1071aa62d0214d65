package kernel

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AnishMulay/sandkernel/internal/console"
	"github.com/AnishMulay/sandkernel/internal/file_table"
	"github.com/AnishMulay/sandkernel/internal/log_service"
	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
	sys "github.com/AnishMulay/sandkernel/internal/syscall_service"
	"github.com/AnishMulay/sandkernel/internal/syscall_service/simple"
)

// Halter stops the machine the kernel runs on.
type Halter interface {
	Halt()
}

type HaltFunc func()

func (f HaltFunc) Halt() { f() }

type Kernel struct {
	storage  ss.StorageService
	console  *console.Console
	capacity int
	halter   Halter
	ls       log_service.LogService

	mu        sync.Mutex
	processes map[int]*Process
	nextPID   int
	halted    bool
}

func NewKernel(storage ss.StorageService, cons *console.Console, capacity int, halter Halter, ls log_service.LogService) (*Kernel, error) {
	if capacity <= file_table.FirstDynamicFD {
		return nil, fmt.Errorf("%w: capacity %d", file_table.ErrInvalidCapacity, capacity)
	}
	if halter == nil {
		halter = HaltFunc(func() {})
	}
	return &Kernel{
		storage:   storage,
		console:   cons,
		capacity:  capacity,
		halter:    halter,
		ls:        ls,
		processes: make(map[int]*Process),
	}, nil
}

// Spawn creates a process whose table holds the console in 0 and 1.
func (k *Kernel) Spawn() (*Process, error) {
	table, err := file_table.NewTable(k.capacity)
	if err != nil {
		return nil, err
	}
	stdin := file_table.NewOpenFile("stdin", k.console.OpenForReading(), file_table.ModeReadOnly)
	if err := table.Install(file_table.StdinFD, stdin); err != nil {
		return nil, err
	}
	stdout := file_table.NewOpenFile("stdout", k.console.OpenForWriting(), file_table.ModeWriteOnly)
	if err := table.Install(file_table.StdoutFD, stdout); err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.halted {
		return nil, ErrKernelHalted
	}

	pid := k.nextPID
	k.nextPID++
	p := &Process{
		pid:    pid,
		kernel: k,
		table:  table,
		sys:    simple.NewSimpleSyscallService(table, k.storage, k.ls),
	}
	k.processes[pid] = p

	k.ls.Info(log_service.LogEvent{
		Message:  "process spawned",
		Metadata: map[string]any{"pid": pid},
	})
	return p, nil
}

func (k *Kernel) Process(pid int) (*Process, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.processes[pid]
	if !ok {
		return nil, fmt.Errorf("%w: pid %d", sys.ErrNoProcess, pid)
	}
	return p, nil
}

// Processes lists live pids, ascending.
func (k *Kernel) Processes() []int {
	k.mu.Lock()
	defer k.mu.Unlock()

	pids := make([]int, 0, len(k.processes))
	for pid := range k.processes {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

// Halt stops the machine. Only the first call reaches the Halter.
func (k *Kernel) Halt() {
	k.mu.Lock()
	if k.halted {
		k.mu.Unlock()
		return
	}
	k.halted = true
	k.mu.Unlock()

	k.ls.Info(log_service.LogEvent{Message: "kernel halting"})
	k.halter.Halt()
}

func (k *Kernel) Halted() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.halted
}

// unregister drops p and reports whether it was the last live process.
func (k *Kernel) unregister(p *Process) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.processes, p.pid)
	return len(k.processes) == 0
}
