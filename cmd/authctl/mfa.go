package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authdata/internal/security/totp"
)

func newMFACmd() *cobra.Command {
	cmd := &cobra.Command{Use: "mfa", Short: "Utilidades TOTP"}

	params := totp.Default
	var secret string
	code := &cobra.Command{
		Use:   "code",
		Short: "Imprime el código TOTP actual de un secreto base32",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret es requerido")
			}
			if !totp.ValidAlgorithm(params.Algorithm) {
				return totp.ErrAlgorithm
			}
			raw, err := totp.DecodeSecret(secret)
			if err != nil {
				return err
			}
			c, err := params.Generate(raw, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c)
			return nil
		},
	}
	code.Flags().StringVar(&secret, "secret", "", "Base32 secret")
	code.Flags().StringVar(&params.Algorithm, "algorithm", params.Algorithm, "SHA1|SHA256|SHA512")
	code.Flags().IntVar(&params.Digits, "digits", params.Digits, "Code length")
	code.Flags().IntVar(&params.Period, "period", params.Period, "Step in seconds")

	var issuer, account string
	gen := &cobra.Command{
		Use:   "secret",
		Short: "Genera un secreto TOTP y su URL otpauth://",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, b32, err := totp.GenerateSecret()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, b32)
			fmt.Fprintln(out, totp.OTPAuthURL(params, issuer, account, b32))
			return nil
		},
	}
	gen.Flags().StringVar(&issuer, "issuer", "authdata", "otpauth issuer")
	gen.Flags().StringVar(&account, "account", "user", "otpauth account name")

	cmd.AddCommand(code, gen)
	return cmd
}
