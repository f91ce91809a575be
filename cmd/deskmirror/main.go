package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "deskmirror",
		Short: "Mirror a desktop to a remote viewer",
		Long: `deskmirror streams a screen as XOR deltas or video packets to one
authenticated viewer and injects the keyboard and mouse input it sends back.

Run "deskmirror serve" on the machine to share and "deskmirror view" on the
machine to watch from.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), viewCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
