package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gradecard/internal/config"
	"gradecard/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "gradecard",
	Short: "Extract student grades from scanned report cards",
	Long: `gradecard reads grades from scanned report cards ("boletins").

Calibrate once on an exemplar page to learn where each subject's grade sits,
then extract every page of a document with the resulting template. Progress is
checkpointed to the output file after each page.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// cfg is loaded before any subcommand runs.
var cfg *config.Config

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		return nil
	}
	rootCmd.PersistentFlags().String("layout", "", "Layout descriptor YAML (default: embedded boletim layout, or LAYOUT_FILE)")
}

// layoutPath returns --layout, falling back to LAYOUT_FILE.
func layoutPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("layout"); p != "" {
		return p
	}
	return cfg.LayoutFile
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, stopping after the current page")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
