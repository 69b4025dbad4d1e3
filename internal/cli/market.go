package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newSaleCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{Use: "sale", Short: "Fixed-price listings"}

	var posID, amount uint64
	var price string
	list := postCommand(o, &cobra.Command{
		Use:   "list",
		Short: "Put units of a position on sale; price is for the whole lot",
		Args:  cobra.NoArgs,
	}, fixedPath("/api/sales"), func([]string) any {
		return map[string]any{"position_id": posID, "amount": amount, "price": price}
	})
	list.Flags().Uint64Var(&posID, "position", 0, "position id")
	list.Flags().Uint64Var(&amount, "amount", 1, "units to list")
	list.Flags().StringVar(&price, "price", "", "total price in wei")

	var buyAmount uint64
	var payment string
	buy := postCommand(o, &cobra.Command{
		Use:   "buy <position-id>",
		Short: "Buy units from a sale position",
		Args:  cobra.ExactArgs(1),
	}, idPath("/api/sales/%d/buy"), func([]string) any {
		return map[string]any{"amount": buyAmount, "payment": payment}
	})
	buy.Flags().Uint64Var(&buyAmount, "amount", 1, "units to buy")
	buy.Flags().StringVar(&payment, "payment", "", "payment in wei")

	unlist := deleteCommand(o, &cobra.Command{
		Use:   "unlist <position-id>",
		Short: "Withdraw a sale listing",
		Args:  cobra.ExactArgs(1),
	}, idPath("/api/sales/%d"))

	cmd.AddCommand(list, buy, unlist)
	return cmd
}

func newAuctionCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{Use: "auction", Short: "English auctions"}

	var posID, amount, minutes uint64
	var minBid string
	create := postCommand(o, &cobra.Command{
		Use:   "create",
		Short: "Auction units of a position",
		Args:  cobra.NoArgs,
	}, fixedPath("/api/auctions"), func([]string) any {
		return map[string]any{"position_id": posID, "amount": amount, "duration_minutes": minutes, "min_bid": minBid}
	})
	create.Flags().Uint64Var(&posID, "position", 0, "position id")
	create.Flags().Uint64Var(&amount, "amount", 1, "units to auction")
	create.Flags().Uint64Var(&minutes, "minutes", 60, "duration in minutes")
	create.Flags().StringVar(&minBid, "min-bid", "0", "minimum bid in wei")

	bid := paymentCommand(o, "bid <position-id>", "Place a bid", "/api/auctions/%d/bids")

	end := postCommand(o, &cobra.Command{
		Use:   "end <position-id>",
		Short: "Settle an auction after its deadline",
		Args:  cobra.ExactArgs(1),
	}, idPath("/api/auctions/%d/end"), nil)

	bids := participantList(o, "bids", "List auctions you bid on", "/api/bids", "bidder")

	cmd.AddCommand(create, bid, end, bids)
	return cmd
}

func newRaffleCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{Use: "raffle", Short: "Raffles"}

	var posID, amount, minutes uint64
	create := postCommand(o, &cobra.Command{
		Use:   "create",
		Short: "Raffle units of a position",
		Args:  cobra.NoArgs,
	}, fixedPath("/api/raffles"), func([]string) any {
		return map[string]any{"position_id": posID, "amount": amount, "duration_minutes": minutes}
	})
	create.Flags().Uint64Var(&posID, "position", 0, "position id")
	create.Flags().Uint64Var(&amount, "amount", 1, "units to raffle")
	create.Flags().Uint64Var(&minutes, "minutes", 60, "duration in minutes")

	enter := paymentCommand(o, "enter <position-id>", "Buy raffle tickets", "/api/raffles/%d/entries")

	end := postCommand(o, &cobra.Command{
		Use:   "end <position-id>",
		Short: "Draw the winner after the deadline",
		Args:  cobra.ExactArgs(1),
	}, idPath("/api/raffles/%d/end"), nil)

	entries := participantList(o, "entries", "List raffles you entered", "/api/raffles", "entrant")

	cmd.AddCommand(create, enter, end, entries)
	return cmd
}

func newLoanCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{Use: "loan", Short: "Collateralised loans"}

	var posID, amount, minutes uint64
	var loanAmount, fee string
	propose := postCommand(o, &cobra.Command{
		Use:   "propose",
		Short: "Offer units of a position as loan collateral",
		Args:  cobra.NoArgs,
	}, fixedPath("/api/loans"), func([]string) any {
		return map[string]any{
			"position_id":      posID,
			"amount":           amount,
			"loan_amount":      loanAmount,
			"fee_amount":       fee,
			"duration_minutes": minutes,
		}
	})
	pf := propose.Flags()
	pf.Uint64Var(&posID, "position", 0, "position id")
	pf.Uint64Var(&amount, "amount", 1, "units of collateral")
	pf.StringVar(&loanAmount, "loan", "", "principal in wei")
	pf.StringVar(&fee, "fee", "0", "lender fee in wei")
	pf.Uint64Var(&minutes, "minutes", 60*24, "term in minutes")

	unlist := deleteCommand(o, &cobra.Command{
		Use:   "unlist <position-id>",
		Short: "Withdraw an unfunded proposal",
		Args:  cobra.ExactArgs(1),
	}, idPath("/api/loans/%d"))

	fund := paymentCommand(o, "fund <position-id>", "Fund a loan proposal", "/api/loans/%d/fund")
	repay := paymentCommand(o, "repay <position-id>", "Repay a funded loan", "/api/loans/%d/repay")

	liquidate := postCommand(o, &cobra.Command{
		Use:   "liquidate <position-id>",
		Short: "Claim collateral of an overdue loan",
		Args:  cobra.ExactArgs(1),
	}, idPath("/api/loans/%d/liquidate"), nil)

	lent := participantList(o, "lent", "List loans you funded", "/api/loans", "lender")

	cmd.AddCommand(propose, unlist, fund, repay, liquidate, lent)
	return cmd
}

// paymentCommand posts {"payment": ...} to a position route.
func paymentCommand(o *options, use, short, pattern string) *cobra.Command {
	var payment string
	cmd := postCommand(o, &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
	}, idPath(pattern), func([]string) any {
		return map[string]string{"payment": payment}
	})
	cmd.Flags().StringVar(&payment, "payment", "", "payment in wei")
	_ = cmd.MarkFlagRequired("payment")
	return cmd
}

func deleteCommand(o *options, cmd *cobra.Command, path func([]string) (string, error)) *cobra.Command {
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
		if err := api.Delete(c.Context(), p, &out); err != nil {
			return err
		}
		return printRaw(c.OutOrStdout(), out)
	}
	return cmd
}
