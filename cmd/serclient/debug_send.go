package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/outband/serclient/internal/config"
	"github.com/outband/serclient/internal/protocol"
	"github.com/outband/serclient/internal/transport"
)

// newDebugSendCommand reintroduces the original implementation's
// --send-raw / --debug-command developer flags (SUPPLEMENTED FEATURES
// §1) as a standalone subcommand: open the configured port, send one
// packet, print whatever comes back, and exit. It never starts the
// watcher loop.
func newDebugSendCommand() *cobra.Command {
	var (
		command  string
		rawHex   string
		guidFlag string
		waitFor  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "debug-send",
		Short: "Send one raw or constructed packet and print the response",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}

			tr, err := transport.Open(transport.Config{
				Device:      cfg.Port,
				BaudRate:    cfg.BaudRate,
				ByteSize:    cfg.ByteSize,
				Parity:      cfg.Parity,
				StopBits:    cfg.StopBits,
				ReadTimeout: 200 * time.Millisecond,
			})
			if err != nil {
				return err
			}
			defer tr.Close()

			var payload []byte
			switch {
			case rawHex != "":
				raw, derr := hex.DecodeString(strings.TrimSpace(rawHex))
				if derr != nil {
					return fmt.Errorf("debug-send: invalid --raw hex: %w", derr)
				}
				payload = raw
			case command != "":
				guid := guidFlag
				if guid == "" {
					guid = strings.ReplaceAll(uuid.NewString(), "-", "")
				}
				payload = protocol.Encode(protocol.NewCommand(guid, command, ""))
			default:
				return fmt.Errorf("debug-send: one of --command or --raw is required")
			}

			if err := tr.Write(payload); err != nil {
				return fmt.Errorf("debug-send: write failed: %w", err)
			}
			fmt.Printf("sent %d bytes\n", len(payload))

			deadline := time.Now().Add(waitFor)
			var buf []byte
			for time.Now().Before(deadline) {
				chunk, rerr := tr.Read(4096, 200*time.Millisecond)
				if rerr != nil {
					return fmt.Errorf("debug-send: read failed: %w", rerr)
				}
				buf = append(buf, chunk...)
				for protocol.HasFullPacket(buf) {
					pkt, n, derr := protocol.Decode(buf)
					if derr != nil {
						fmt.Printf("decode error: %v\n", derr)
						buf = nil
						break
					}
					fmt.Println(pkt.String())
					buf = buf[n:]
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&command, "command", "", "command string to wrap in a Command packet, e.g. 'osinfo'")
	cmd.Flags().StringVar(&rawHex, "raw", "", "hex-encoded raw bytes to send verbatim, overrides --command")
	cmd.Flags().StringVar(&guidFlag, "guid", "", "32-character hex GUID to use (generated if omitted)")
	cmd.Flags().DurationVar(&waitFor, "wait", 2*time.Second, "how long to wait for and print responses")
	cmd.Flags().String("port", "", "serial device path")
	cmd.Flags().Int("baudrate", 0, "serial baud rate")
	cmd.Flags().Int("bytesize", 0, "serial byte size (5-8)")
	cmd.Flags().Int("parity", -1, "serial parity (0=none, 1=odd, 2=even)")
	cmd.Flags().Int("stopbits", 0, "serial stop bits (1 or 2)")

	return cmd
}
