package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authdata/internal/app"
	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/config"
	"github.com/dropDatabas3/authdata/internal/providers"
)

func newValidateCmd() *cobra.Command {
	var configPath, provider, authData, mode string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Valida authData contra un proveedor configurado",
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				return fmt.Errorf("--provider es requerido")
			}
			var data providers.AuthData
			if err := json.Unmarshal([]byte(authData), &data); err != nil {
				return fmt.Errorf("--auth-data: %w", err)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			c, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Service.Validate(cmd.Context(), provider, data, providers.Request{Mode: providers.Mode(mode)})
			if err != nil {
				e := autherr.FromError(err)
				return fmt.Errorf("rejected (code %d): %s", e.Code, e.Message)
			}
			out, _ := json.MarshalIndent(map[string]any{"valid": true, "claims": res.Claims}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", envOr("AUTHDATA_CONFIG", "configs/authdata.yaml"), "Path to YAML config")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider name (google, apple, mfa, ...)")
	cmd.Flags().StringVar(&authData, "auth-data", "{}", "authData as JSON")
	cmd.Flags().StringVar(&mode, "mode", "", "Validation mode: login|setup|update (default: adapter decides)")
	return cmd
}
