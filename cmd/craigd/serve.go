package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherstuff/craigd/config"
	"github.com/otherstuff/craigd/internal/cvm"
	"github.com/otherstuff/craigd/internal/server"
	"github.com/otherstuff/craigd/internal/store"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			st := store.New(cfg.Output.Dir)
			if err := st.EnsureRoot(); err != nil {
				return err
			}
			logger := log.New(os.Stdout, "[HTTP] ", log.LstdFlags)
			runner := cvm.SessionRunner{Cfg: cfg.Tools}
			return server.New(cfg, st, runner, logger).Start()
		},
	}
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return serve
}
