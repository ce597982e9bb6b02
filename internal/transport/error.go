package transport

import "syscall"

// Error wraps a low-level syscall/ioctl failure with a short
// descriptive message, the way the original driver layered context
// onto raw errno values.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.msg != "" {
		if e.err != nil {
			return e.msg + ": " + e.err.Error()
		}
		return e.msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e Error) Unwrap() error {
	return e.err
}

var ErrClosed = Error{msg: "port already closed", err: syscall.EBADF}
