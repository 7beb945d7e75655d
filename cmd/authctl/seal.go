package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authdata/internal/security/secretbox"
)

func newSealCmd() *cobra.Command {
	var key string
	var open bool
	cmd := &cobra.Command{
		Use:   "seal <value>",
		Short: "Cifra (o descifra con --open) un valor con la master key del secretbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return fmt.Errorf("AUTHDATA_SECRETBOX_KEY not set")
			}
			box, err := secretbox.New(key)
			if err != nil {
				return err
			}
			var out string
			if open {
				out, err = box.Open(args[0])
			} else {
				out, err = box.Seal(args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", envOr("AUTHDATA_SECRETBOX_KEY", ""), "Master key (base64, hex or 32 raw bytes)")
	cmd.Flags().BoolVar(&open, "open", false, "Decrypt instead of encrypt")
	return cmd
}
