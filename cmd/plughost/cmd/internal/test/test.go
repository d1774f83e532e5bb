// Package test provides utilities for testing the plughost CLI commands.
// It executes a fresh root command per call and captures its streams.
package test

import (
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/spf13/cobra"

	"plughost.software/plughost/cmd/plughost/cmd"
	"plughost.software/plughost/cmd/plughost/internal/flags/log"
)

// Options holds configuration for executing plughost CLI commands in tests.
type Options struct {
	args   []string  // command line arguments to pass to the CLI
	in     io.Reader // standard input of the command
	out    io.Writer // captures command output
	logs   io.Writer // captures the error stream, where logs land by default
	format string    // log format to use (e.g. json, text)
}

// Option is a function that configures Options.
type Option func(*Options)

// WithArgs sets the command line arguments for the CLI invocation.
func WithArgs(args ...string) Option {
	return func(o *Options) {
		o.args = args
	}
}

// WithInput sets the standard input of the CLI invocation.
func WithInput(in io.Reader) Option {
	return func(o *Options) {
		o.in = in
	}
}

// WithOutput sets the writer capturing command output.
func WithOutput(out io.Writer) Option {
	return func(o *Options) {
		o.out = out
	}
}

// WithLogs sets the writer capturing the error stream. Logging defaults to
// standard error, so this is where log lines arrive.
func WithLogs(logs io.Writer) Option {
	return func(o *Options) {
		o.logs = logs
	}
}

// WithLogFormat sets the log format for the CLI invocation.
func WithLogFormat(format string) Option {
	return func(o *Options) {
		o.format = format
	}
}

// Plughost executes a plughost CLI command with the given options and returns
// the executed command and any error. It is designed to be used in tests to
// run commands and capture their output.
func Plughost(tb testing.TB, opts ...Option) (*cobra.Command, error) {
	tb.Helper()

	opt := Options{}
	for _, o := range opts {
		o(&opt)
	}
	instance := cmd.New()
	if len(opt.args) == 0 {
		opt.args = []string{"help"}
	}

	if opt.in != nil {
		instance.SetIn(opt.in)
	}
	// Mirror captured output towards stdout so failing tests show what the
	// command printed.
	if opt.out != nil {
		instance.SetOut(io.MultiWriter(os.Stdout, opt.out))
	}
	if opt.logs != nil {
		instance.SetErr(opt.logs)
	}

	// Structured logs are easier to assert against than console text.
	if opt.format == "" {
		opt.format = log.FormatJSON
	}
	f := instance.PersistentFlags().Lookup(log.FormatFlagName)
	if err := f.Value.Set(opt.format); err != nil {
		return nil, fmt.Errorf("failed to set format: %w", err)
	}

	instance.SetArgs(opt.args)
	return instance.ExecuteContextC(tb.Context())
}
