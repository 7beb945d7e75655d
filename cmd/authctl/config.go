package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authdata/internal/app"
	"github.com/dropDatabas3/authdata/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Operaciones sobre la configuración"}

	var configPath string
	check := &cobra.Command{
		Use:   "check",
		Short: "Carga, valida y resuelve cada proveedor configurado",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			c, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			names := make([]string, 0, len(cfg.Auth))
			for n := range cfg.Auth {
				names = append(names, n)
			}
			sort.Strings(names)
			out := cmd.OutOrStdout()
			failed := 0
			for _, n := range names {
				loaded, err := c.Loader.Load(cmd.Context(), n)
				switch {
				case err != nil:
					failed++
					fmt.Fprintf(out, "%-12s error: %v\n", n, err)
				case !loaded.Enabled:
					fmt.Fprintf(out, "%-12s disabled\n", n)
				default:
					fmt.Fprintf(out, "%-12s ok\n", n)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d provider(s) misconfigured", failed)
			}
			return nil
		},
	}
	check.Flags().StringVar(&configPath, "config", envOr("AUTHDATA_CONFIG", "configs/authdata.yaml"), "Path to YAML config")
	cmd.AddCommand(check)
	return cmd
}
