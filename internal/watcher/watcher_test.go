package watcher

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outband/serclient/internal/protocol"
	"github.com/outband/serclient/internal/registry"
)

// fakeTransport stands in for a serial port: bytes "from the host"
// are queued with feed, and bytes the watcher writes accumulate in an
// outbound buffer tests can decode.
type fakeTransport struct {
	mu       sync.Mutex
	toAgent  []byte
	outbound []byte
}

func (f *fakeTransport) Read(max int, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.toAgent) == 0 {
		return nil, nil
	}
	n := len(f.toAgent)
	if n > max {
		n = max
	}
	out := append([]byte(nil), f.toAgent[:n]...)
	f.toAgent = f.toAgent[n:]
	return out, nil
}

func (f *fakeTransport) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbound = append(f.outbound, data...)
	return nil
}

func (f *fakeTransport) feed(pkt protocol.Packet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toAgent = append(f.toAgent, protocol.Encode(pkt)...)
}

// drainOutbound decodes every complete packet currently buffered.
func (f *fakeTransport) drainOutbound() []protocol.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Packet
	for protocol.HasFullPacket(f.outbound) {
		pkt, n, err := protocol.Decode(f.outbound)
		if err != nil {
			break
		}
		out = append(out, pkt)
		f.outbound = f.outbound[n:]
	}
	return out
}

func testConfig() Config {
	return Config{
		ReadSize:       4096,
		ReadTimeout:    5 * time.Millisecond,
		LoopInterval:   5 * time.Millisecond,
		CommandTimeout: 5 * time.Second,
	}
}

// eventually polls fn until it returns a non-nil slice or timeout
// elapses, for observing outbound packets produced by worker
// goroutines running concurrently with the main loop.
func eventually(t *testing.T, timeout time.Duration, fn func() []protocol.Packet) []protocol.Packet {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last []protocol.Packet
	for time.Now().Before(deadline) {
		if got := fn(); len(got) > 0 {
			last = append(last, got...)
			return last
		}
		time.Sleep(5 * time.Millisecond)
	}
	return last
}

// untilResponse returns a poll function for eventually that keeps every
// packet drained so far and returns them all once a Response has been
// seen, so packets written in earlier drains are not lost.
func untilResponse(ft *fakeTransport) func() []protocol.Packet {
	var seen []protocol.Packet
	return func() []protocol.Packet {
		pkts := ft.drainOutbound()
		seen = append(seen, pkts...)
		for _, p := range pkts {
			if p.CommandType == protocol.Response {
				return seen
			}
		}
		return nil
	}
}

func newTestWatcher(t *testing.T, reg *registry.Registry, cfg Config) (*Watcher, *fakeTransport, context.CancelFunc) {
	t.Helper()
	ft := &fakeTransport{}
	w := New(ft, reg, nil, nil, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, ft, cancel
}

func typesOf(pkts []protocol.Packet) []protocol.CommandType {
	out := make([]protocol.CommandType, len(pkts))
	for i, p := range pkts {
		out[i] = p.CommandType
	}
	return out
}

// S1: single-packet command, success.
func TestScenarioSinglePacketCommandSuccess(t *testing.T) {
	reg := registry.New("")
	reg.Register(registry.Module{Kind: registry.Plugins, FullPath: "/bin/sh", Alias: "osinfo", Upgradeable: true})

	_, ft, _ := newTestWatcher(t, reg, testConfig())

	guid := strings.Repeat("a", 32)
	ft.feed(protocol.NewCommand(guid, "osinfo -c 'echo hello-agent'", ""))

	out := eventually(t, 2*time.Second, untilResponse(ft))

	require.Equal(t, []protocol.CommandType{protocol.Ack, protocol.AuthResponse, protocol.Response}, typesOf(out))
	require.Contains(t, string(out[2].Body), "hello-agent")
	require.Contains(t, string(out[2].Body), "<responseType>Success</responseType>")
}

// S2: two-packet command reassembled.
func TestScenarioTwoPacketCommandReassembled(t *testing.T) {
	reg := registry.New("")
	reg.Register(registry.Module{Kind: registry.Plugins, FullPath: "/bin/sh", Alias: "osinfo", Upgradeable: true})

	_, ft, _ := newTestWatcher(t, reg, testConfig())

	guid := strings.Repeat("b", 32)
	ft.feed(protocol.Packet{CommandType: protocol.Command, GUID: guid, Number: 1, Count: 2, Body: []byte("<command><commandString>osinfo -c 'ec")})

	received := eventually(t, time.Second, func() []protocol.Packet { return ft.drainOutbound() })
	require.Equal(t, []protocol.CommandType{protocol.Received}, typesOf(received))

	ft.feed(protocol.Packet{CommandType: protocol.Command, GUID: guid, Number: 2, Count: 2, Body: []byte("ho joined'</commandString></command>")})

	out := eventually(t, 2*time.Second, untilResponse(ft))
	require.Equal(t, []protocol.CommandType{protocol.Ack, protocol.AuthResponse, protocol.Response}, typesOf(out))
	require.Contains(t, string(out[2].Body), "joined")
}

// S3: unknown alias.
func TestScenarioUnknownAlias(t *testing.T) {
	reg := registry.New("")
	_, ft, _ := newTestWatcher(t, reg, testConfig())

	guid := strings.Repeat("c", 32)
	ft.feed(protocol.NewCommand(guid, "frobnicate", ""))

	out := eventually(t, 2*time.Second, untilResponse(ft))
	require.Equal(t, []protocol.CommandType{protocol.Ack, protocol.AuthResponse, protocol.Response}, typesOf(out))
	require.Contains(t, string(out[2].Body), "<responseType>Error</responseType>")
	require.Contains(t, string(out[2].Body), "<resultCode>1</resultCode>")
}

// S4: CRC corruption.
func TestScenarioCRCCorruption(t *testing.T) {
	reg := registry.New("")
	_, ft, _ := newTestWatcher(t, reg, testConfig())

	guid := strings.Repeat("d", 32)
	encoded := protocol.Encode(protocol.NewCommand(guid, "osinfo", ""))
	encoded[protocol.HeaderSize+len(protocol.NewCommand(guid, "osinfo", "").Body)] ^= 0x01

	ft.mu.Lock()
	ft.toAgent = append(ft.toAgent, encoded...)
	ft.mu.Unlock()

	time.Sleep(200 * time.Millisecond)
	require.Empty(t, ft.drainOutbound())
}

// S5: timeout.
func TestScenarioWorkerTimeout(t *testing.T) {
	reg := registry.New("")
	reg.Register(registry.Module{Kind: registry.Plugins, FullPath: "/bin/sleep", Alias: "slow"})

	cfg := testConfig()
	cfg.CommandTimeout = 300 * time.Millisecond
	_, ft, _ := newTestWatcher(t, reg, cfg)

	guid := strings.Repeat("e", 32)
	ft.feed(protocol.NewCommand(guid, "slow 30", ""))

	out := eventually(t, 3*time.Second, untilResponse(ft))
	require.Equal(t, []protocol.CommandType{protocol.Ack, protocol.AuthResponse, protocol.Response}, typesOf(out))
	require.Contains(t, string(out[2].Body), "<responseType>TimeOut</responseType>")
}

// S6: blocking command ordering.
func TestScenarioBlockingCommandOrdering(t *testing.T) {
	reg := registry.New("")
	reg.Register(registry.Module{Kind: registry.Internals, FullPath: "/bin/sh", Alias: "restart", Blocking: true})
	reg.Register(registry.Module{Kind: registry.Plugins, FullPath: "/bin/sh", Alias: "osinfo", Upgradeable: true})

	_, ft, _ := newTestWatcher(t, reg, testConfig())

	restartGUID := strings.Repeat("1", 32)
	osinfoGUID := strings.Repeat("2", 32)
	ft.feed(protocol.NewCommand(restartGUID, "restart -c 'sleep 0.3'", ""))
	ft.feed(protocol.NewCommand(osinfoGUID, "osinfo -c 'echo done'", ""))

	var all []protocol.Packet
	deadline := time.Now().Add(3 * time.Second)
	responsesSeen := 0
	for time.Now().Before(deadline) && responsesSeen < 2 {
		pkts := ft.drainOutbound()
		all = append(all, pkts...)
		for _, p := range pkts {
			if p.CommandType == protocol.Response {
				responsesSeen++
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 2, responsesSeen, "expected both commands to eventually complete")

	authIndex := map[string]int{}
	for i, p := range all {
		if p.CommandType == protocol.AuthResponse {
			if _, ok := authIndex[p.GUID]; !ok {
				authIndex[p.GUID] = i
			}
		}
	}
	require.Less(t, authIndex[restartGUID], authIndex[osinfoGUID],
		"the blocking restart command must complete before osinfo is dispatched")
}
