// Package cli implements marketctl, a command-line client for the
// marketplace API.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/assetmarket/internal/client"
	"github.com/alanyoungcy/assetmarket/internal/config"
	"github.com/alanyoungcy/assetmarket/internal/crypto"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	apiURL     string
	key        string
	keyFile    string
	password   string
}

// NewRootCommand builds the marketctl command tree.
func NewRootCommand() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "marketctl",
		Short:         "Command-line client for the asset marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "configuration file (wallet and market sections)")
	pf.StringVar(&o.apiURL, "api", "", "API base URL (default http://localhost:<server.port>)")
	pf.StringVar(&o.key, "key", "", "hex private key, overrides the configured wallet")
	pf.StringVar(&o.keyFile, "key-file", "", "encrypted key file, overrides the configured wallet")
	pf.StringVar(&o.password, "password", "", "password for --key-file")

	root.AddCommand(
		newKeyCommand(o),
		newItemCommand(o),
		newPositionCommand(o),
		newSaleCommand(o),
		newAuctionCommand(o),
		newRaffleCommand(o),
		newLoanCommand(o),
		newLedgerCommand(o),
		newAdminCommand(o),
		newDevCommand(o),
	)
	return root
}

func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.key != "" || o.keyFile != "" {
		cfg.Wallet = config.WalletConfig{PrivateKey: o.key, EncryptedKeyPath: o.keyFile, KeyPassword: o.password}
	}
	return cfg, nil
}

func (o *options) baseURL(cfg *config.Config) string {
	if o.apiURL != "" {
		return o.apiURL
	}
	return "http://localhost:" + strconv.Itoa(cfg.Server.Port)
}

// readClient needs no wallet.
func (o *options) readClient() (*client.Client, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(o.baseURL(cfg), nil), nil
}

// signingClient loads the wallet key and signs requests for the configured
// market domain.
func (o *options) signingClient() (*client.Client, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	signer, err := o.signer(cfg)
	if err != nil {
		return nil, err
	}
	return client.New(o.baseURL(cfg), signer), nil
}

func (o *options) signer(cfg *config.Config) (*crypto.Signer, error) {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, err
	}
	return crypto.NewSigner(key, crypto.Domain{
		Name:              cfg.Market.Name,
		Version:           cfg.Market.Version,
		ChainID:           cfg.Market.ChainID,
		VerifyingContract: common.HexToAddress(cfg.Market.Address),
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// postCommand builds a command that signs a POST and prints the response.
func postCommand(o *options, cmd *cobra.Command, path func(args []string) (string, error), body func(args []string) any) *cobra.Command {
	cmd.RunE = func(c *cobra.Command, args []string) error {
		p, err := path(args)
		if err != nil {
			return err
		}
		api, err := o.signingClient()
		if err != nil {
			return err
		}
		var out json.RawMessage
		var payload any
		if body != nil {
			payload = body(args)
		}
		if err := api.Post(c.Context(), p, payload, &out); err != nil {
			return err
		}
		return printRaw(c.OutOrStdout(), out)
	}
	return cmd
}

func printRaw(w io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return printJSON(w, v)
}

// idPath formats pattern with the first positional argument as an id.
func idPath(pattern string) func(args []string) (string, error) {
	return func(args []string) (string, error) {
		id, err := parseID(args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(pattern, id), nil
	}
}

func fixedPath(p string) func([]string) (string, error) {
	return func([]string) (string, error) { return p, nil }
}
