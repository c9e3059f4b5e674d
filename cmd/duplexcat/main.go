// SPDX-License-Identifier: GPL-3.0-or-later

// Command duplexcat is a netcat-like tool built on duplexsock.
//
// The dial subcommand connects to a tcp:// or tls:// target, copies the
// standard input to the peer and what the peer sends to the standard output.
// The echo subcommand runs a TCP peer echoing back everything it receives.
//
// Every flag can also be set using an environment variable named after the
// flag with the DUPLEXCAT_ prefix (e.g., DUPLEXCAT_CLOSE_TIMEOUT=10s). The
// variables may live in a .env file in the current directory.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bassosimone/duplexsock"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:          "duplexcat",
	Short:        "netcat-like tool for the duplexsock transport",
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	key := "log-level"
	rootCmd.PersistentFlags().String(key, "", "log to stderr at the given level (debug, info); empty disables logging")

	rootCmd.AddCommand(dialCmd)
	rootCmd.AddCommand(echoCmd)
}

// initConfig makes viper read flags from the environment.
func initConfig() {
	_ = godotenv.Load(".env")

	viper.SetEnvPrefix("duplexcat")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindFlags binds the flags of cmd to viper.
func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

// newLogger returns the logger selected by the log-level flag.
func newLogger(w io.Writer) (duplexsock.SLogger, error) {
	var level slog.Level
	switch value := viper.GetString("log-level"); value {
	case "":
		return duplexsock.DefaultSLogger(), nil
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	default:
		return nil, fmt.Errorf("invalid log level: %s (expected debug or info)", value)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
