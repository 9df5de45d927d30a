package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherstuff/craigd/config"
	"github.com/otherstuff/craigd/internal/prefetch"
	"github.com/otherstuff/craigd/internal/store"
)

func prefetchCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "prefetch <npub>",
		Short: "Cache a subject's referenced media into its montage directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			npub := args[0]
			cfg := config.LoadConfig(cfgPath)
			st := store.New(cfg.Output.Dir)
			logger := log.New(os.Stdout, "[PREFETCH] ", log.LstdFlags)

			bundles, err := st.DayBundles(npub)
			if err != nil {
				return fmt.Errorf("no stored events for %s: %w", npub, err)
			}
			var events []store.Event
			for _, name := range bundles {
				var day []store.Event
				if err := store.ReadJSON(st.DayBundlePath(npub, store.DayToken(name)), &day); err != nil {
					logger.Printf("skipping unreadable bundle %s: %v", name, err)
					continue
				}
				events = append(events, day...)
			}
			if len(events) == 0 {
				return fmt.Errorf("no stored events for %s", npub)
			}

			_, err = prefetch.Run(cmd.Context(), events, st.MontageDir(npub), prefetch.Options{
				MaxBytes:    cfg.Prefetch.MaxBytes,
				Concurrency: cfg.Prefetch.Concurrency,
				Log:         logger,
			})
			return err
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return cmd
}
