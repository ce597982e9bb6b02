package transport

// OpenPTY finds an available pseudoterminal and returns its master and
// slave ends. It has no role in talking to a real hypervisor-exposed
// serial port; it exists so tests can drive the watcher end-to-end
// over a real character device without any hardware, the master
// acting as "the host" and the slave as the agent's configured port.
func OpenPTY(termp *Termios, winp *Winsize) (master, slave *Port, err error) {
	master, err = OpenDevice("/dev/ptmx", nil)
	if err != nil {
		return nil, nil, err
	}
	if err := master.SetLockPT(false); err != nil {
		master.Close()
		return nil, nil, err
	}
	slave, err = master.GetPTPeer(0)
	if err != nil {
		master.Close()
		return nil, nil, err
	}
	if termp != nil {
		if err := slave.SetAttr(TCSANOW, termp); err != nil {
			master.Close()
			slave.Close()
			return nil, nil, err
		}
	}
	if winp != nil {
		if err := slave.SetWinSize(winp); err != nil {
			master.Close()
			slave.Close()
			return nil, nil, err
		}
	}
	return master, slave, nil
}
