// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"

	"github.com/bassosimone/duplexsock"
	"github.com/bassosimone/duplexsock/pipe"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var dialCmd = &cobra.Command{
	Use:     "dial TARGET",
	Short:   "Connect to TARGET (e.g., tcp://127.0.0.1:7878) and copy stdin/stdout",
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE:    runDial,
}

func init() {
	flags := dialCmd.Flags()
	flags.Duration("close-timeout", duplexsock.DefaultCloseTimeout, "time the second pump has to finish before aborting")
	flags.Duration("connect-timeout", 0, "bound connecting (zero means no bound)")
	flags.String("dns-server", "", "resolve using this DNS server (e.g., 8.8.8.8:53) instead of the system resolver")
	flags.String("dns-protocol", "udp", "protocol for --dns-server (udp, tcp, dot)")
	flags.Int("frame-header-size", 0, "bytes reserved before each received chunk to hold its length (0-4)")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.Bool("metrics", false, "print the transport metrics to stderr when done")
	flags.Int("receive-buffer-size", duplexsock.DefaultReceiveBufferSize, "maximum bytes read from the socket at once")
	flags.String("server-name", "", "TLS server name of the target (defaults to the target host)")
}

// newDialConfig builds the transport configuration from the flags.
func newDialConfig(logger duplexsock.SLogger) (*duplexsock.Config, error) {
	cfg := duplexsock.NewConfig()
	cfg.CloseTimeout = viper.GetDuration("close-timeout")
	cfg.FrameHeaderSize = viper.GetInt("frame-header-size")
	cfg.ReceiveBufferSize = viper.GetInt("receive-buffer-size")

	if cfg.CloseTimeout <= 0 {
		return nil, fmt.Errorf("invalid close timeout: %s", cfg.CloseTimeout)
	}
	if cfg.FrameHeaderSize < 0 || cfg.FrameHeaderSize > 4 {
		return nil, fmt.Errorf("invalid frame header size: %d (expected 0-4)", cfg.FrameHeaderSize)
	}
	if cfg.ReceiveBufferSize <= 0 {
		return nil, fmt.Errorf("invalid receive buffer size: %d", cfg.ReceiveBufferSize)
	}

	if viper.GetBool("insecure") || viper.GetString("server-name") != "" {
		cfg.TLSConfig = &tls.Config{
			InsecureSkipVerify: viper.GetBool("insecure"),
			ServerName:         viper.GetString("server-name"),
		}
	}

	if server := viper.GetString("dns-server"); server != "" {
		endpoint, err := netip.ParseAddrPort(server)
		if err != nil {
			return nil, fmt.Errorf("invalid DNS server: %w", err)
		}
		protocol := viper.GetString("dns-protocol")
		switch protocol {
		case "udp", "tcp", "dot":
		default:
			return nil, fmt.Errorf("invalid DNS protocol: %s (expected udp, tcp, or dot)", protocol)
		}
		cfg.Resolver = duplexsock.NewDNSResolver(newDNSConfig(cfg), protocol, endpoint, logger)
	}
	return cfg, nil
}

// newDNSConfig returns a copy of cfg for the DNS resolver. The --server-name
// flag names the target, so the DoT handshake uses the server address instead.
func newDNSConfig(cfg *duplexsock.Config) *duplexsock.Config {
	dnsCfg := *cfg
	if cfg.TLSConfig != nil {
		dnsCfg.TLSConfig = cfg.TLSConfig.Clone()
		dnsCfg.TLSConfig.ServerName = ""
	}
	return &dnsCfg
}

func runDial(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := newDialConfig(logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	connectCtx := ctx
	if timeout := viper.GetDuration("connect-timeout"); timeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	txp, err := duplexsock.Dial(connectCtx, cfg, args[0], logger)
	if err != nil {
		return err
	}
	defer txp.Close()

	// Reading stdin cannot be interrupted, so the copy does not join the group.
	go copyToTransport(ctx, os.Stdin, txp.Output())

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return copyFromTransport(gctx, txp.Input(), os.Stdout)
	})
	group.Go(func() error {
		return txp.Wait(gctx)
	})
	err = group.Wait()
	txp.Close()

	if viper.GetBool("metrics") {
		cfg.Metrics.WritePrometheus(os.Stderr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// copyToTransport copies r into w until EOF, then completes w.
func copyToTransport(ctx context.Context, r io.Reader, w *pipe.Writer) error {
	for {
		mem := w.GetMemory(duplexsock.DefaultReceiveBufferSize)
		n, err := r.Read(mem)
		if n > 0 {
			w.Advance(n)
			result, ferr := w.Flush(ctx)
			if ferr != nil {
				return ferr
			}
			if result.IsCanceled || result.IsCompleted {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			w.Complete(nil)
			return nil
		}
		if err != nil {
			w.Complete(err)
			return err
		}
	}
}

// copyFromTransport copies r into w until the transport stops receiving.
//
// A cancelled read means the transport is shutting down while bytes may
// still arrive, hence the loop keeps reading.
func copyFromTransport(ctx context.Context, r *pipe.Reader, w io.Writer) error {
	for {
		result, err := r.Read(ctx)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, segment := range result.Buffer {
			if _, err := w.Write(segment); err != nil {
				r.Complete(err)
				return err
			}
		}
		n := result.Buffer.Len()
		r.AdvanceTo(n, n)
		if result.IsCompleted && n == 0 {
			return nil
		}
	}
}
