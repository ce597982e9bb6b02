package transport

import (
	"errors"
	"fmt"
	"syscall"
	"time"
)

// Config is the serial line configuration supplied once at open time
// (spec §4.4: "configuration (baud rate, byte size, parity, stop
// bits) is supplied once at open"). None of these affect the frame
// format; they only shape the physical link.
type Config struct {
	Device string

	// BaudRate defaults to 57600 (spec §6).
	BaudRate int
	// ByteSize is the character size in bits, 5-8; defaults to 8.
	ByteSize int
	// Parity is 0 (none), 1 (odd) or 2 (even); defaults to 0.
	Parity int
	// StopBits is 1 or 2; defaults to 1.
	StopBits int

	// ReadTimeout is the read timeout Open gives the underlying Port
	// (Port.Read waits at most this long for data). Transport.Read does
	// not use it: every call passes its own timeout. WrapPort leaves the
	// wrapped Port's own setting unchanged.
	ReadTimeout time.Duration
}

// DefaultConfig returns the spec-mandated defaults for device.
func DefaultConfig(device string) Config {
	return Config{
		Device:      device,
		BaudRate:    57600,
		ByteSize:    8,
		Parity:      0,
		StopBits:    1,
		ReadTimeout: 200 * time.Millisecond,
	}
}

var baudRates = map[int]CFlag{
	50: B50, 75: B75, 110: B110, 134: B134, 150: B150, 200: B200,
	300: B300, 600: B600, 1200: B1200, 1800: B1800, 2400: B2400,
	4800: B4800, 9600: B9600, 19200: B19200, 38400: B38400,
	57600: B57600, 115200: B115200, 230400: B230400, 460800: B460800,
	500000: B500000, 576000: B576000, 921600: B921600,
	1000000: B1000000, 1152000: B1152000, 1500000: B1500000,
	2000000: B2000000, 2500000: B2500000, 3000000: B3000000,
	3500000: B3500000, 4000000: B4000000,
}

var byteSizes = map[int]CFlag{5: CS5, 6: CS6, 7: CS7, 8: CS8}

// Transport is the C4 serial transport: a bounded, timed read and a
// write, over a Port configured per a Config.
type Transport struct {
	port *Port
	cfg  Config
}

// Open opens cfg.Device and applies cfg's line settings in raw mode.
func Open(cfg Config) (*Transport, error) {
	if cfg.BaudRate == 0 {
		cfg = DefaultConfig(cfg.Device)
	}
	opts := NewOptions()
	opts.ReadTimeout = cfg.ReadTimeout
	port, err := OpenDevice(cfg.Device, opts)
	if err != nil {
		return nil, err
	}
	if err := applyConfig(port, cfg); err != nil {
		port.Close()
		return nil, err
	}
	return &Transport{port: port, cfg: cfg}, nil
}

// WrapPort adapts an already-open Port (such as one end of a test
// PTY pair) into a Transport, applying the same line configuration a
// real device open would.
func WrapPort(port *Port, cfg Config) (*Transport, error) {
	if err := applyConfig(port, cfg); err != nil {
		return nil, err
	}
	return &Transport{port: port, cfg: cfg}, nil
}

func applyConfig(port *Port, cfg Config) error {
	attrs, err := port.GetAttr()
	if err != nil {
		return err
	}
	attrs.MakeRaw()

	baud, ok := baudRates[cfg.BaudRate]
	if !ok {
		return fmt.Errorf("transport: unsupported baud rate %d", cfg.BaudRate)
	}
	attrs.SetSpeed(baud)

	size, ok := byteSizes[cfg.ByteSize]
	if !ok {
		return fmt.Errorf("transport: unsupported byte size %d", cfg.ByteSize)
	}
	attrs.Cflag &= ^CSIZE
	attrs.Cflag |= size

	switch cfg.StopBits {
	case 1:
		attrs.Cflag &= ^CSTOPB
	case 2:
		attrs.Cflag |= CSTOPB
	default:
		return fmt.Errorf("transport: unsupported stop bits %d", cfg.StopBits)
	}

	switch cfg.Parity {
	case 0:
		attrs.Cflag &= ^PARENB
	case 1:
		attrs.Cflag |= PARENB | PARODD
	case 2:
		attrs.Cflag |= PARENB
		attrs.Cflag &= ^PARODD
	default:
		return fmt.Errorf("transport: unsupported parity %d", cfg.Parity)
	}

	attrs.Cflag |= CREAD | CLOCAL

	return port.SetAttr(TCSANOW, attrs)
}

// Read reads up to max bytes, waiting at most timeout for the first
// byte to arrive. A timeout with no data yields (nil, nil), not
// an error: the watcher's main loop treats an empty read as "nothing
// to do this tick" (spec §4.4, §4.6).
func (t *Transport) Read(max int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, max)
	n, err := t.port.ReadTimeout(buf, timeout)
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, err
	}
	return buf[:n], nil
}

// Write writes data in full; the transport performs no framing of its
// own, that is the protocol layer's job.
func (t *Transport) Write(data []byte) error {
	_, err := t.port.Write(data)
	return err
}

func (t *Transport) Close() error {
	return t.port.Close()
}

// isTimeout reports whether err signals a read deadline expiring with
// no data available, following the net.Error convention (a
// Timeout() bool method) rather than assuming any concrete error
// type from the underlying poll wrapper.
func isTimeout(err error) bool {
	if errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, syscall.EAGAIN) {
		return true
	}
	type timeoutError interface{ Timeout() bool }
	te, ok := err.(timeoutError)
	return ok && te.Timeout()
}
