package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/On-Jun9/PixelPipe/internal/web"
)

var (
	appVersion = "0.1.0"

	addr string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "pixelpipe-web",
	Short:         "Serve the PixelPipe web UI",
	Version:       appVersion,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		server := web.NewServer()
		server.SetVersion(appVersion)
		return server.Start(addr)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&addr, "addr", "a", "localhost:8080", "HTTP listen address")
}
