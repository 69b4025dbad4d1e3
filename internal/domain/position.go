package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// State is the lifecycle state of a Position.
type State int

const (
	StateAvailable State = iota
	StateOnSale
	StateOnAuction
	StateOnRaffle
	StateOnLoan
	// StateClosed marks a position whose units were fully transferred out.
	StateClosed
)

// LiveStates lists the states that carry live counters.
var LiveStates = []State{StateAvailable, StateOnSale, StateOnAuction, StateOnRaffle, StateOnLoan}

var stateNames = map[State]string{
	StateAvailable: "available",
	StateOnSale:    "on_sale",
	StateOnAuction: "on_auction",
	StateOnRaffle:  "on_raffle",
	StateOnLoan:    "on_loan",
	StateClosed:    "closed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// IsMechanism reports whether s is one of the four exchange mechanism states.
func (s State) IsMechanism() bool {
	return s >= StateOnSale && s <= StateOnLoan
}

// ParseState accepts either the state name or its numeric value.
func ParseState(v string) (State, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for s, n := range stateNames {
		if n == v || fmt.Sprint(int(s)) == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", v)
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	switch {
	case from == StateAvailable:
		return to.IsMechanism()
	case from.IsMechanism():
		return to == StateAvailable || to == StateClosed
	default:
		return false
	}
}

// Position is a quantity of an item's units held in exactly one state.
type Position struct {
	ID           uint64
	ItemID       uint64
	Owner        common.Address
	Amount       uint64
	MarketFeeBps uint32
	State        State
	Sale         *SaleData
	Auction      *AuctionData
	Raffle       *RaffleData
	Loan         *LoanData
}

// SaleData is the payload of an OnSale position.
type SaleData struct {
	// Price is the asking price for the position's whole current amount.
	Price Amount
}

// AuctionData is the payload of an OnAuction position.
type AuctionData struct {
	Deadline      time.Time
	MinBid        Amount
	HighestBid    Amount
	HighestBidder *common.Address
}

// RaffleEntry is one contribution to a raffle.
type RaffleEntry struct {
	Bidder      common.Address
	Contributed Amount
}

// RaffleData is the payload of an OnRaffle position.
type RaffleData struct {
	Deadline   time.Time
	TotalValue Amount
	Entries    []RaffleEntry
}

// LoanData is the payload of an OnLoan position.
type LoanData struct {
	LoanAmount      Amount
	FeeAmount       Amount
	DurationMinutes uint64
	Lender          *common.Address
	Deadline        *time.Time
}

// StateData bundles the variant payload handed to a transition. Exactly the
// field matching the target state must be set.
type StateData struct {
	Sale    *SaleData
	Auction *AuctionData
	Raffle  *RaffleData
	Loan    *LoanData
}

// Validate checks that d carries the payload required by s and nothing else.
func (d StateData) Validate(s State) error {
	set := map[State]bool{
		StateOnSale:    d.Sale != nil,
		StateOnAuction: d.Auction != nil,
		StateOnRaffle:  d.Raffle != nil,
		StateOnLoan:    d.Loan != nil,
	}
	for st, ok := range set {
		if ok && st != s {
			return fmt.Errorf("%w: %s payload given for %s", ErrInvalidTransition, st, s)
		}
	}
	if s.IsMechanism() && !set[s] {
		return fmt.Errorf("%w: missing %s payload", ErrInvalidTransition, s)
	}
	return nil
}

// Apply replaces the variant payload of p with d.
func (p *Position) Apply(d StateData) {
	p.Sale, p.Auction, p.Raffle, p.Loan = d.Sale, d.Auction, d.Raffle, d.Loan
}

// Data returns the variant payload of p.
func (p Position) Data() StateData {
	return StateData{Sale: p.Sale, Auction: p.Auction, Raffle: p.Raffle, Loan: p.Loan}
}

// Clone returns a deep copy of p.
func (p Position) Clone() Position {
	out := p
	if p.Sale != nil {
		s := *p.Sale
		out.Sale = &s
	}
	if p.Auction != nil {
		a := *p.Auction
		if a.HighestBidder != nil {
			b := *a.HighestBidder
			a.HighestBidder = &b
		}
		out.Auction = &a
	}
	if p.Raffle != nil {
		r := *p.Raffle
		r.Entries = append([]RaffleEntry(nil), p.Raffle.Entries...)
		out.Raffle = &r
	}
	if p.Loan != nil {
		l := *p.Loan
		if l.Lender != nil {
			v := *l.Lender
			l.Lender = &v
		}
		if l.Deadline != nil {
			v := *l.Deadline
			l.Deadline = &v
		}
		out.Loan = &l
	}
	return out
}

// PositionFilter narrows position queries. Nil fields match everything.
// Closed positions are never returned.
type PositionFilter struct {
	Owner   *common.Address
	State   *State
	ItemID  *uint64
	Bidder  *common.Address // auctions whose highest bidder is this address
	Entrant *common.Address // raffles this address has entered
	Lender  *common.Address // loans funded by this address
}

// Matches reports whether p satisfies the filter.
func (f PositionFilter) Matches(p Position) bool {
	if p.State == StateClosed {
		return false
	}
	if f.Owner != nil && *f.Owner != p.Owner {
		return false
	}
	if f.State != nil && *f.State != p.State {
		return false
	}
	if f.ItemID != nil && *f.ItemID != p.ItemID {
		return false
	}
	if f.Bidder != nil {
		if p.Auction == nil || p.Auction.HighestBidder == nil || *p.Auction.HighestBidder != *f.Bidder {
			return false
		}
	}
	if f.Entrant != nil {
		if p.Raffle == nil {
			return false
		}
		found := false
		for _, e := range p.Raffle.Entries {
			if e.Bidder == *f.Entrant {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Lender != nil {
		if p.Loan == nil || p.Loan.Lender == nil || *p.Loan.Lender != *f.Lender {
			return false
		}
	}
	return true
}
