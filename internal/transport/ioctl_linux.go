package transport

import (
	ioctl "github.com/daedaluz/goioctl"
)

// Ioctl request numbers used by the Port. Only the subset the agent
// actually needs is kept: Termios get/set, and the pseudoterminal
// calls OpenPTY needs to hand a test harness a controllable slave end.
var (
	tcgets = uintptr(0x5401)
	tcsets = uintptr(0x5402)

	tiocsptlck  = ioctl.IOW('T', 0x31, 4) // (un)lock pty
	tiocgptpeer = ioctl.IO('T', 0x41)     // open the pty peer
	tiocswinsz  = uintptr(0x5414)
)
