package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// check-config: проверка файла конфигурации без подключения
func checkConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate config file and print effective endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "websocket: %s\n", cfg.WebsocketURL())
			fmt.Fprintf(out, "api:       %s\n", cfg.APIBaseURL())
			fmt.Fprintf(out, "guest:     %t\n", cfg.IsGuest())
			fmt.Fprintf(out, "ice:       %s, %d custom servers\n", cfg.ICEPolicy(), len(cfg.ICEServers))
			fmt.Fprintf(out, "sessions:  auto_connect=%t allow_video=%t orphan_policy=%s\n",
				*cfg.AutoConnectSessions, *cfg.AllowVideo, cfg.SessionConfig().OrphanPolicy)
			return nil
		},
	}
}
