package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"deepscribe/config"
	srv "deepscribe/internal/server"
)

func serveCMD() *cobra.Command {
	var addr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}

			eng, _, err := buildEngine(cfg, "", "", "", 0)
			if err != nil {
				return err
			}

			logger := log.New(log.Writer(), "[SERVE] ", log.LstdFlags)
			st := openStore(context.Background(), cfg, logger)
			if st != nil {
				defer st.Close()
			}

			return srv.New(eng, st, cfg).Run()
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
