package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StateDataJSON is the wire and storage form of a position payload. Amounts
// are base-10 strings.
type StateDataJSON struct {
	Sale    *SaleJSON    `json:"sale,omitempty"`
	Auction *AuctionJSON `json:"auction,omitempty"`
	Raffle  *RaffleJSON  `json:"raffle,omitempty"`
	Loan    *LoanJSON    `json:"loan,omitempty"`
}

type SaleJSON struct {
	Price string `json:"price"`
}

type AuctionJSON struct {
	Deadline      time.Time       `json:"deadline"`
	MinBid        string          `json:"min_bid"`
	HighestBid    string          `json:"highest_bid"`
	HighestBidder *common.Address `json:"highest_bidder,omitempty"`
}

type RaffleEntryJSON struct {
	Bidder      common.Address `json:"bidder"`
	Contributed string         `json:"contributed"`
}

type RaffleJSON struct {
	Deadline   time.Time         `json:"deadline"`
	TotalValue string            `json:"total_value"`
	Entries    []RaffleEntryJSON `json:"entries"`
}

type LoanJSON struct {
	LoanAmount      string          `json:"loan_amount"`
	FeeAmount       string          `json:"fee_amount"`
	DurationMinutes uint64          `json:"duration_minutes"`
	Lender          *common.Address `json:"lender,omitempty"`
	Deadline        *time.Time      `json:"deadline,omitempty"`
}

// EncodeStateData converts a payload to its JSON form.
func EncodeStateData(d StateData) StateDataJSON {
	var out StateDataJSON
	if d.Sale != nil {
		out.Sale = &SaleJSON{Price: d.Sale.Price.Dec()}
	}
	if a := d.Auction; a != nil {
		out.Auction = &AuctionJSON{
			Deadline:      a.Deadline,
			MinBid:        a.MinBid.Dec(),
			HighestBid:    a.HighestBid.Dec(),
			HighestBidder: a.HighestBidder,
		}
	}
	if r := d.Raffle; r != nil {
		rj := &RaffleJSON{Deadline: r.Deadline, TotalValue: r.TotalValue.Dec(), Entries: make([]RaffleEntryJSON, 0, len(r.Entries))}
		for i := range r.Entries {
			rj.Entries = append(rj.Entries, RaffleEntryJSON{Bidder: r.Entries[i].Bidder, Contributed: r.Entries[i].Contributed.Dec()})
		}
		out.Raffle = rj
	}
	if l := d.Loan; l != nil {
		out.Loan = &LoanJSON{
			LoanAmount:      l.LoanAmount.Dec(),
			FeeAmount:       l.FeeAmount.Dec(),
			DurationMinutes: l.DurationMinutes,
			Lender:          l.Lender,
			Deadline:        l.Deadline,
		}
	}
	return out
}

// Decode converts the JSON form back to a payload.
func (j StateDataJSON) Decode() (StateData, error) {
	var d StateData
	if j.Sale != nil {
		price, err := ParseAmount(j.Sale.Price)
		if err != nil {
			return StateData{}, err
		}
		d.Sale = &SaleData{Price: price}
	}
	if a := j.Auction; a != nil {
		minBid, err := ParseAmount(a.MinBid)
		if err != nil {
			return StateData{}, err
		}
		highest, err := ParseAmount(a.HighestBid)
		if err != nil {
			return StateData{}, err
		}
		d.Auction = &AuctionData{Deadline: a.Deadline, MinBid: minBid, HighestBid: highest, HighestBidder: a.HighestBidder}
	}
	if r := j.Raffle; r != nil {
		total, err := ParseAmount(r.TotalValue)
		if err != nil {
			return StateData{}, err
		}
		rd := &RaffleData{Deadline: r.Deadline, TotalValue: total}
		for _, e := range r.Entries {
			c, err := ParseAmount(e.Contributed)
			if err != nil {
				return StateData{}, err
			}
			rd.Entries = append(rd.Entries, RaffleEntry{Bidder: e.Bidder, Contributed: c})
		}
		d.Raffle = rd
	}
	if l := j.Loan; l != nil {
		loan, err := ParseAmount(l.LoanAmount)
		if err != nil {
			return StateData{}, err
		}
		fee, err := ParseAmount(l.FeeAmount)
		if err != nil {
			return StateData{}, err
		}
		d.Loan = &LoanData{LoanAmount: loan, FeeAmount: fee, DurationMinutes: l.DurationMinutes, Lender: l.Lender, Deadline: l.Deadline}
	}
	return d, nil
}
