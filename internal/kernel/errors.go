package kernel

import "errors"

var (
	ErrKernelHalted  = errors.New("kernel halted")
	ErrProcessExited = errors.New("process already exited")
)
