package cli

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

type mintBody struct {
	Amount           uint64 `json:"amount"`
	URI              string `json:"uri"`
	MimeType         string `json:"mime_type,omitempty"`
	RoyaltyRecipient string `json:"royalty_recipient,omitempty"`
	RoyaltyBps       uint32 `json:"royalty_bps,omitempty"`
}

func newItemCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{Use: "item", Short: "Mint and inspect items"}

	var m mintBody
	mint := postCommand(o, &cobra.Command{
		Use:   "mint",
		Short: "Mint a new token and list it as an item",
		Args:  cobra.NoArgs,
	}, fixedPath("/api/items/mint"), func([]string) any { return m })
	mf := mint.Flags()
	mf.Uint64Var(&m.Amount, "amount", 1, "editions to mint")
	mf.StringVar(&m.URI, "uri", "", "metadata URI")
	mf.StringVar(&m.MimeType, "mime", "", "content mime type")
	mf.StringVar(&m.RoyaltyRecipient, "royalty-recipient", "", "royalty recipient address")
	mf.Uint32Var(&m.RoyaltyBps, "royalty-bps", 0, "royalty in basis points")

	var contract, tokenID string
	create := postCommand(o, &cobra.Command{
		Use:   "create",
		Short: "Register units of an existing token",
		Args:  cobra.NoArgs,
	}, fixedPath("/api/items"), func([]string) any {
		return map[string]string{"contract": contract, "token_id": tokenID}
	})
	create.Flags().StringVar(&contract, "contract", "", "token contract address")
	create.Flags().StringVar(&tokenID, "token-id", "", "token id")

	available := postCommand(o, &cobra.Command{
		Use:   "available <item-id>",
		Short: "Add units acquired outside the market to an item",
		Args:  cobra.ExactArgs(1),
	}, idPath("/api/items/%d/available"), nil)

	get := queryCommand(o, &cobra.Command{
		Use:   "get <item-id>",
		Short: "Show an item",
		Args:  cobra.ExactArgs(1),
	}, idPath("/api/items/%d"), nil)

	metadata := queryCommand(o, &cobra.Command{
		Use:   "metadata <item-id>",
		Short: "Show token metadata for an item",
		Args:  cobra.ExactArgs(1),
	}, idPath("/api/items/%d/metadata"), nil)

	var creator string
	var page, size int
	list := queryCommand(o, &cobra.Command{
		Use:   "list",
		Short: "List items",
		Args:  cobra.NoArgs,
	}, fixedPath("/api/items"), func() url.Values {
		q := pageQuery(page, size)
		if creator != "" {
			q.Set("creator", creator)
		}
		return q
	})
	list.Flags().StringVar(&creator, "creator", "", "filter by creator")
	pageFlags(list, &page, &size)

	cmd.AddCommand(mint, create, available, get, metadata, list)
	return cmd
}

// queryCommand builds a command that GETs a path and prints the response.
func queryCommand(o *options, cmd *cobra.Command, path func([]string) (string, error), query func() url.Values) *cobra.Command {
	cmd.RunE = func(c *cobra.Command, args []string) error {
		p, err := path(args)
		if err != nil {
			return err
		}
		api, err := o.readClient()
		if err != nil {
			return err
		}
		var q url.Values
		if query != nil {
			q = query()
		}
		var out json.RawMessage
		if err := api.Get(c.Context(), p, q, &out); err != nil {
			return err
		}
		return printRaw(c.OutOrStdout(), out)
	}
	return cmd
}

func pageFlags(cmd *cobra.Command, page, size *int) {
	cmd.Flags().IntVar(page, "page", 1, "page number")
	cmd.Flags().IntVar(size, "size", 50, "page size")
}

func pageQuery(page, size int) url.Values {
	return url.Values{"page": {strconv.Itoa(page)}, "size": {strconv.Itoa(size)}}
}
