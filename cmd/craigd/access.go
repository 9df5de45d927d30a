package main

import (
	"encoding/json"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherstuff/craigd/config"
	"github.com/otherstuff/craigd/internal/cvm"
	"github.com/otherstuff/craigd/internal/server"
)

func accessCMD() *cobra.Command {
	var cfgPath string
	var quiet bool
	var cmd = &cobra.Command{
		Use:   "access-check <encoded-token>",
		Short: "Check a payment token against the remote access tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			logger := log.New(os.Stderr, "[ACCESS] ", log.LstdFlags)
			if quiet {
				logger = log.New(io.Discard, "", 0)
			}

			runner := cvm.SessionRunner{Cfg: cfg.Tools}
			decision := server.CheckAccess(cmd.Context(), runner, cfg.Tools.AccessTool, args[0], logger)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(decision)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress logging")

	return cmd
}
