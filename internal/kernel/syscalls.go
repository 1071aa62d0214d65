package kernel

// Syscall numbers as seen by user programs.
const (
	SyscallHalt   = 0
	SyscallExit   = 1
	SyscallExec   = 2
	SyscallJoin   = 3
	SyscallCreat  = 4
	SyscallOpen   = 5
	SyscallRead   = 6
	SyscallWrite  = 7
	SyscallClose  = 8
	SyscallUnlink = 9
)

var syscallNames = map[int]string{
	SyscallHalt:   "halt",
	SyscallExit:   "exit",
	SyscallExec:   "exec",
	SyscallJoin:   "join",
	SyscallCreat:  "creat",
	SyscallOpen:   "open",
	SyscallRead:   "read",
	SyscallWrite:  "write",
	SyscallClose:  "close",
	SyscallUnlink: "unlink",
}

func SyscallName(num int) string {
	if name, ok := syscallNames[num]; ok {
		return name
	}
	return "unknown"
}

// Args carries syscall arguments already copied out of the caller. Which
// fields matter depends on the syscall number.
type Args struct {
	Name   string
	FD     int
	Buf    []byte
	Count  int
	Status int
}
