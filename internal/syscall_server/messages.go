package syscall_server

// Message Type Constants
const (
	// Process lifecycle
	MsgKernelSpawn = "kernel_spawn"
	MsgKernelExit  = "kernel_exit"
	MsgKernelHalt  = "kernel_halt"

	// File syscalls
	MsgKernelCreat  = "kernel_creat"
	MsgKernelOpen   = "kernel_open"
	MsgKernelRead   = "kernel_read"
	MsgKernelWrite  = "kernel_write"
	MsgKernelClose  = "kernel_close"
	MsgKernelUnlink = "kernel_unlink"
)

// MaxTransferSize caps the bytes a single remote read returns.
const MaxTransferSize = 1 << 20

// --- Payload Structs ---

type SpawnRequest struct{}

type ExitRequest struct {
	PID    int `json:"pid"`
	Status int `json:"status"`
}

type HaltRequest struct {
	PID int `json:"pid"`
}

type CreatRequest struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

type OpenRequest struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

type ReadRequest struct {
	PID   int `json:"pid"`
	FD    int `json:"fd"`
	Count int `json:"count"`
}

// WriteRequest sends Data; Count may be smaller than len(Data) but a larger
// Count is a bad address, as it would be for a local caller.
type WriteRequest struct {
	PID   int    `json:"pid"`
	FD    int    `json:"fd"`
	Data  []byte `json:"data"`
	Count int    `json:"count"`
}

type CloseRequest struct {
	PID int `json:"pid"`
	FD  int `json:"fd"`
}

type UnlinkRequest struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// Result is the body of every successful response. Result carries the
// syscall's integer return, negated errno included; Data holds the bytes of
// a read. Exited is set only by an exit that ended the process, since its
// status may itself be negative.
type Result struct {
	Result int    `json:"result"`
	Data   []byte `json:"data,omitempty"`
	Exited bool   `json:"exited,omitempty"`
}
