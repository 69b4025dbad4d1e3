package cli

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newPositionCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{Use: "position", Short: "Inspect positions"}

	get := queryCommand(o, &cobra.Command{
		Use:   "get <position-id>",
		Short: "Show a position",
		Args:  cobra.ExactArgs(1),
	}, idPath("/api/positions/%d"), nil)

	var owner, state string
	var itemID uint64
	var page, size int
	list := queryCommand(o, &cobra.Command{
		Use:   "list",
		Short: "List positions",
		Args:  cobra.NoArgs,
	}, fixedPath("/api/positions"), func() url.Values {
		q := pageQuery(page, size)
		if owner != "" {
			q.Set("owner", owner)
		}
		if state != "" {
			q.Set("state", state)
		}
		if itemID != 0 {
			q.Set("item_id", strconv.FormatUint(itemID, 10))
		}
		return q
	})
	list.Flags().StringVar(&owner, "owner", "", "filter by owner")
	list.Flags().StringVar(&state, "state", "", "filter by state (available, on_sale, on_auction, on_raffle, on_loan, loan_funded)")
	list.Flags().Uint64Var(&itemID, "item", 0, "filter by item id")
	pageFlags(list, &page, &size)

	count := queryCommand(o, &cobra.Command{
		Use:   "count <state>",
		Short: "Count positions ever created in a state",
		Args:  cobra.ExactArgs(1),
	}, func(args []string) (string, error) {
		return "/api/positions/count/" + url.PathEscape(args[0]), nil
	}, nil)

	cmd.AddCommand(get, list, count)
	return cmd
}

// participantList lists positions a participant has joined.
func participantList(o *options, use, short, path, param string) *cobra.Command {
	var addr string
	var page, size int
	list := queryCommand(o, &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
	}, fixedPath(path), func() url.Values {
		q := pageQuery(page, size)
		q.Set(param, addr)
		return q
	})
	list.Flags().StringVar(&addr, param, "", "participant address")
	_ = list.MarkFlagRequired(param)
	pageFlags(list, &page, &size)
	return list
}
