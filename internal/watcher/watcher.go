// Package watcher implements the protocol state machine (C6): the
// single read/dispatch loop that decodes framed packets off the
// transport, reassembles multi-part commands, dispatches them to
// workers, and serializes responses back onto the wire.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/outband/serclient/internal/metrics"
	"github.com/outband/serclient/internal/protocol"
	"github.com/outband/serclient/internal/reassembly"
	"github.com/outband/serclient/internal/registry"
	"github.com/outband/serclient/internal/worker"
)

// Transport is the subset of internal/transport.Transport the watcher
// needs; accepting the interface rather than the concrete type lets
// tests drive the loop over an in-memory or pipe-backed fake instead
// of a real character device.
type Transport interface {
	Read(max int, timeout time.Duration) ([]byte, error)
	Write(data []byte) error
}

// Config tunes the loop's cadence; none of it is part of the wire
// protocol.
type Config struct {
	// ReadSize bounds how many bytes Ingest asks the transport for per
	// iteration.
	ReadSize int
	// ReadTimeout bounds how long a single transport read may block.
	ReadTimeout time.Duration
	// LoopInterval is the brief sleep between main-loop iterations.
	LoopInterval time.Duration
	// CommandTimeout is the wall-clock deadline applied to every
	// worker subprocess (spec's command_timeout_ms).
	CommandTimeout time.Duration
}

// DefaultConfig returns reasonable cadence values; only CommandTimeout
// is meant to be overridden in practice (from agent configuration).
func DefaultConfig() Config {
	return Config{
		ReadSize:       4096,
		ReadTimeout:    200 * time.Millisecond,
		LoopInterval:   20 * time.Millisecond,
		CommandTimeout: 20 * time.Second,
	}
}

// RestartMarker persists a single pending-response GUID across a
// process restart triggered by the "restart" internal module, so the
// response for the command that requested the restart can still be
// delivered once the new process comes up (spec §6's
// root_dir/serclient.service marker; SUPPLEMENTED FEATURES §3).
type RestartMarker interface {
	WriteRestartMarker(guid string) error
	ReadRestartMarker() (guid string, ok bool)
	ClearRestartMarker() error
}

type commandRequest struct {
	GUID   string
	Text   string
	Module registry.Module
}

type workerHandle struct {
	module registry.Module
	done   chan struct{}
	result worker.LaunchResult
}

// Watcher is the process-singleton protocol state machine described
// in spec §4.6. Construct one with New and run its loop with Run; Run
// blocks until its context is cancelled, joining any in-flight
// workers before returning.
type Watcher struct {
	transport Transport
	pool      *reassembly.Pool
	registry  *registry.Registry
	logger    logrus.FieldLogger
	metrics   *metrics.Collector
	cfg       Config

	restartMarker RestartMarker

	egressMu sync.Mutex
	egress   []protocol.Packet

	// ingress, pending, workers and processSerially are owned
	// exclusively by the goroutine running Run (spec §5: "only the
	// egress queue is shared mutable state").
	ingress         []byte
	pending         []commandRequest
	workers         map[string]*workerHandle
	processSerially bool
}

// New builds a Watcher. logger may be nil (falls back to
// logrus.StandardLogger); metrics may be nil (all observations become
// no-ops).
func New(transport Transport, reg *registry.Registry, logger logrus.FieldLogger, collector *metrics.Collector, cfg Config) *Watcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Watcher{
		transport: transport,
		pool:      reassembly.New(),
		registry:  reg,
		logger:    logger,
		metrics:   collector,
		cfg:       cfg,
		workers:   make(map[string]*workerHandle),
	}
}

// SetRestartMarker installs m as the restart-survival mechanism used
// by the "restart" internal module; until called, restarts complete
// without persisting anything.
func (w *Watcher) SetRestartMarker(m RestartMarker) {
	w.restartMarker = m
}

// ResumePendingRestart checks for a restart marker left by a previous
// process and, if found, delivers the completion packets for the GUID
// it names before the main loop starts, then clears it. Call this once
// before Run.
func (w *Watcher) ResumePendingRestart() {
	if w.restartMarker == nil {
		return
	}
	guid, ok := w.restartMarker.ReadRestartMarker()
	if !ok {
		return
	}
	w.logger.WithField("guid", guid).Info("resuming response for restart command across process restart")
	w.SendLater(protocol.NewAuthResponse(guid))
	w.SendLater(protocol.NewResponse(guid, protocol.Success, "restart", "", 0, ""))
	if err := w.restartMarker.ClearRestartMarker(); err != nil {
		w.logger.WithError(err).Warn("failed to clear restart marker")
	}
}

// SendLater enqueues pkt for the next egress drain. It is the only
// watcher method a worker goroutine may call (spec §4.6.3).
func (w *Watcher) SendLater(pkt protocol.Packet) {
	w.egressMu.Lock()
	w.egress = append(w.egress, pkt)
	w.egressMu.Unlock()
}

// Run executes the main loop until ctx is cancelled, then joins all
// in-flight workers before returning ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			w.joinWorkers()
			return err
		}

		w.drainEgress()
		w.ingest()
		w.dispatch(ctx)
		w.reap()

		select {
		case <-ctx.Done():
			w.joinWorkers()
			return ctx.Err()
		case <-time.After(w.cfg.LoopInterval):
		}
	}
}

func (w *Watcher) joinWorkers() {
	for _, wh := range w.workers {
		<-wh.done
	}
}

// drainEgress pops every queued packet under the egress mutex and
// writes them to the transport in order (spec §4.6 phase 1).
func (w *Watcher) drainEgress() {
	w.egressMu.Lock()
	batch := w.egress
	w.egress = nil
	w.egressMu.Unlock()

	for _, pkt := range batch {
		if err := w.transport.Write(protocol.Encode(pkt)); err != nil {
			w.logger.WithError(err).Error("transport write failed")
		}
	}
}

// ingest reads available bytes and decodes every complete packet at
// the front of the buffer (spec §4.6 phase 2).
func (w *Watcher) ingest() {
	buf, err := w.transport.Read(w.cfg.ReadSize, w.cfg.ReadTimeout)
	if err != nil {
		w.logger.WithError(err).Warn("transport read failed")
		return
	}
	if len(buf) > 0 {
		w.ingress = append(w.ingress, buf...)
	}

	for protocol.HasFullPacket(w.ingress) {
		pkt, n, err := protocol.Decode(w.ingress)
		if err != nil {
			// Decode errors are recoverable (spec §7): the offending
			// bytes are discarded and the loop continues. A single
			// malformed packet cannot be safely lengthed out of a
			// buffer with unreliable framing, so the whole buffer is
			// dropped and resynchronization happens on the next read.
			w.logger.WithError(err).Warn("packet decode failed, discarding ingress buffer")
			w.metrics.ObserveDecodeError(decodeErrorKind(err))
			w.ingress = nil
			return
		}
		w.ingress = w.ingress[n:]
		w.react(pkt)
	}
}

func decodeErrorKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrBadMagic):
		return "bad_magic"
	case errors.Is(err, protocol.ErrBadCommand):
		return "bad_command"
	case errors.Is(err, protocol.ErrBadGUID):
		return "bad_guid"
	case errors.Is(err, protocol.ErrNumberOutOfRange):
		return "number_out_of_range"
	case errors.Is(err, protocol.ErrBadCRC):
		return "bad_crc"
	default:
		return "unknown"
	}
}

// react applies the packet-type rules of spec §4.6.1.
func (w *Watcher) react(pkt protocol.Packet) {
	switch pkt.CommandType {
	case protocol.Command:
		w.handleCommand(pkt)
	case protocol.AuthResponse:
		// The host acknowledging our completion notice. Core flow
		// never observes this (the agent is the one that emits
		// AuthResponse), but glue/extensions may loop it back.
		delete(w.workers, pkt.GUID)
	default:
		// Ack, Received, Response: no-op for the core (spec §4.6.1).
	}
}

func (w *Watcher) handleCommand(pkt protocol.Packet) {
	if _, active := w.workers[pkt.GUID]; active {
		w.logger.WithField("guid", pkt.GUID).Warn("dropping fragment for a guid already in flight")
		return
	}

	w.pool.Add(pkt)

	if pkt.Count > 1 && !w.pool.IsComplete(pkt.GUID, pkt.Count) {
		w.SendLater(protocol.NewReceived(pkt.GUID, pkt.Number, pkt.Count, false))
		return
	}

	assembled, ok := w.pool.Assemble(pkt.GUID)
	if !ok {
		return
	}
	w.pool.Remove(pkt.GUID)

	text, err := protocol.ParseCommandString(assembled.Body)
	if err != nil {
		w.logger.WithError(err).WithField("guid", pkt.GUID).Error("malformed command body")
		return
	}

	mod := w.registry.LookupCommand(text)
	w.SendLater(protocol.NewAck(pkt.GUID))
	w.pending = append(w.pending, commandRequest{GUID: pkt.GUID, Text: text, Module: mod})
	w.metrics.SetPendingCommands(len(w.pending))
}

// dispatch pops and starts at most one command per iteration (spec
// §4.6 phase 3).
func (w *Watcher) dispatch(ctx context.Context) {
	if w.processSerially || len(w.pending) == 0 {
		return
	}

	cmd := w.pending[0]
	w.pending = w.pending[1:]
	w.metrics.SetPendingCommands(len(w.pending))

	if !cmd.Module.Valid() {
		alias := registry.AliasOf(cmd.Text)
		w.logger.WithField("alias", alias).Warn("unknown module, rejecting command")
		w.SendLater(protocol.NewAuthResponse(cmd.GUID))
		w.SendLater(protocol.NewResponse(cmd.GUID, protocol.Error, alias, "", 1, fmt.Sprintf("unknown module: %s", alias)))
		return
	}

	w.processSerially = cmd.Module.Blocking
	wh := &workerHandle{module: cmd.Module, done: make(chan struct{})}
	w.workers[cmd.GUID] = wh
	w.metrics.SetActiveWorkers(len(w.workers))

	go w.runWorker(ctx, cmd, wh)
}

func (w *Watcher) runWorker(ctx context.Context, cmd commandRequest, wh *workerHandle) {
	isRestart := cmd.Module.Alias == "restart" && w.restartMarker != nil
	if isRestart {
		if err := w.restartMarker.WriteRestartMarker(cmd.GUID); err != nil {
			w.logger.WithError(err).Warn("failed to persist restart marker")
		}
	}

	result := worker.Launch(ctx, cmd.Module.FullPath, cmd.Text, true, w.cfg.CommandTimeout)
	wh.result = result
	w.metrics.ObserveCommand(strings.ToLower(result.Result.String()))

	w.SendLater(protocol.NewAuthResponse(cmd.GUID))
	w.SendLater(responseFromLaunchResult(cmd.GUID, registry.AliasOf(cmd.Text), result))

	if isRestart {
		if err := w.restartMarker.ClearRestartMarker(); err != nil {
			w.logger.WithError(err).Warn("failed to clear restart marker")
		}
	}

	close(wh.done)
}

// reap removes workers whose goroutine has signalled completion and
// clears the serialization latch if it was theirs (spec §4.6 phase 4).
func (w *Watcher) reap() {
	for guid, wh := range w.workers {
		select {
		case <-wh.done:
			if wh.module.Blocking {
				w.processSerially = false
			}
			delete(w.workers, guid)
		default:
		}
	}
	w.metrics.SetActiveWorkers(len(w.workers))
}

// responseFromLaunchResult maps a LaunchResult onto the outbound
// Response packet per spec §4.6.2.
func responseFromLaunchResult(guid, commandName string, result worker.LaunchResult) protocol.Packet {
	switch {
	case result.Result == worker.Timeout:
		return protocol.NewResponse(guid, protocol.TimeOut, commandName, "", 1, "")
	case result.Result == worker.Success && result.ExitCode == 0:
		return protocol.NewResponse(guid, protocol.Success, commandName, result.Output, 0, "")
	default:
		return protocol.NewResponse(guid, protocol.Error, commandName, "", result.ExitCode, result.Output)
	}
}
