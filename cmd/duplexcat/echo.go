// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"

	"github.com/bassosimone/duplexsock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var echoCmd = &cobra.Command{
	Use:     "echo",
	Short:   "Run a TCP peer echoing back what it receives",
	Args:    cobra.NoArgs,
	PreRunE: bindFlags,
	RunE:    runEcho,
}

func init() {
	echoCmd.Flags().String("address", "127.0.0.1:7878", "address to listen on")
}

func runEcho(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", viper.GetString("address"))
	if err != nil {
		return err
	}
	context.AfterFunc(ctx, func() {
		listener.Close()
	})
	logger.Info("echoListening", slog.String("localAddr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go serveEcho(conn, logger)
	}
}

// serveEcho copies conn onto itself until the peer closes its write side.
func serveEcho(conn net.Conn, logger duplexsock.SLogger) {
	defer conn.Close()
	count, err := io.Copy(conn, conn)
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.CloseWrite()
	}
	logger.Info(
		"echoDone",
		slog.Any("err", err),
		slog.Int64("ioBytesCount", count),
		slog.String("remoteAddr", conn.RemoteAddr().String()),
	)
}
