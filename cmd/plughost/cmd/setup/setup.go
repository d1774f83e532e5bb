// Package setup wires the shared host structures, logger and plugin
// manager, into the command context before a subcommand runs.
package setup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	hostcmd "plughost.software/plughost/cmd/plughost/cmd/internal/cmd"
	"plughost.software/plughost/cmd/plughost/internal/flags/log"
	"plughost.software/plughost/cmd/plughost/internal/hostctx"
	"plughost.software/plughost/manager"
)

// InspectionInterface stands in when no interface contract is given on the
// command line. The contract is only compared during loads, so inspection
// commands work fine with the placeholder.
const InspectionInterface = "plughost.cli/inspect"

// PreRunE is the persistent pre-run hook of the root command: it builds the
// logger from the logging flags, constructs the plugin manager from the
// discovery flags and stores both in the command context.
func PreRunE(cmd *cobra.Command, _ []string) error {
	if err := Logger(cmd); err != nil {
		return fmt.Errorf("could not set up logger: %w", err)
	}
	if err := Manager(cmd); err != nil {
		return fmt.Errorf("could not set up plugin manager: %w", err)
	}

	// inherit IO from parent if exists
	if parent := cmd.Parent(); parent != nil {
		cmd.SetOut(parent.OutOrStdout())
		cmd.SetErr(parent.ErrOrStderr())
	}
	return nil
}

// Logger configures the process logger from the command's logging flags and
// attaches it to the command context for ambient use.
func Logger(c *cobra.Command) error {
	logger, err := log.GetBaseLogger(c)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	c.SetContext(slogcontext.NewCtx(c.Context(), logger))
	return nil
}

// Manager constructs the plugin manager from the persistent discovery flags
// and stores it in the command context. The manager is torn down when the
// command tree finishes.
func Manager(c *cobra.Command) error {
	dir, err := c.Flags().GetString(hostcmd.PluginDirectoryFlag)
	if err != nil {
		return err
	}
	suffixes, err := c.Flags().GetStringSlice(hostcmd.SuffixFlag)
	if err != nil {
		return err
	}
	iface, err := c.Flags().GetString(hostcmd.InterfaceFlag)
	if err != nil {
		return err
	}
	if iface == "" {
		iface = InspectionInterface
	}

	opts := []manager.Option{manager.WithSuffixes(suffixes...)}
	if dir != "" {
		opts = append(opts, manager.WithDirectory(os.ExpandEnv(dir)))
	}

	pm, err := manager.New(c.Context(), iface, opts...)
	if err != nil {
		return fmt.Errorf("could not construct plugin manager: %w", err)
	}
	c.SetContext(hostctx.WithManager(c.Context(), pm))

	cobra.OnFinalize(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pm.Close(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to close plugin manager", slog.String("error", err.Error()))
		}
	})

	return nil
}
