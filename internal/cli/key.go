package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/assetmarket/internal/crypto"
)

func newKeyCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the wallet key",
	}

	var out string
	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt --key with --password and write it to --out",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if o.key == "" || o.password == "" {
				return errors.New("key encrypt needs --key and --password")
			}
			blob, err := crypto.EncryptKey(o.key, o.password)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, blob, 0o600); err != nil {
				return fmt.Errorf("write key file: %w", err)
			}
			fmt.Fprintf(c.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	encrypt.Flags().StringVar(&out, "out", "wallet.key.json", "output path")

	address := &cobra.Command{
		Use:   "address",
		Short: "Print the address of the configured wallet",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			s, err := o.signer(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), s.Address().Hex())
			return nil
		},
	}

	cmd.AddCommand(encrypt, address)
	return cmd
}
