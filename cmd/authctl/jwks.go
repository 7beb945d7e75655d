package main

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authdata/internal/jwks"
)

func newJWKSCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "jwks <uri>",
		Short: "Descarga un JWKS y muestra cada clave en PEM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache := jwks.New(jwks.Config{HTTPClient: &http.Client{Timeout: timeout}})
			keys, err := cache.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			kids := make([]string, 0, len(keys))
			for kid := range keys {
				kids = append(kids, kid)
			}
			sort.Strings(kids)

			out := cmd.OutOrStdout()
			for _, kid := range kids {
				k := keys[kid]
				pem, err := k.PEM()
				if err != nil {
					return fmt.Errorf("kid %s: %w", kid, err)
				}
				alg := k.Algorithm
				if alg == "" {
					alg = "-"
				}
				fmt.Fprintf(out, "%s %s\n%s\n", kid, alg, pem)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "HTTP timeout")
	return cmd
}
