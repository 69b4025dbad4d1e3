package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names a committed market operation.
type EventType string

const (
	EventItemCreated      EventType = "item_created"
	EventPositionListed   EventType = "position_listed"
	EventPositionUnlisted EventType = "position_unlisted"
	EventSale             EventType = "sale"
	EventBid              EventType = "bid"
	EventAuctionEnded     EventType = "auction_ended"
	EventRaffleEntered    EventType = "raffle_entered"
	EventRaffleEnded      EventType = "raffle_ended"
	EventLoanFunded       EventType = "loan_funded"
	EventLoanRepaid       EventType = "loan_repaid"
	EventLoanLiquidated   EventType = "loan_liquidated"
	EventWithdrawal       EventType = "withdrawal"
	EventFeeChanged       EventType = "fee_changed"
	EventSuccessorSet     EventType = "successor_set"
)

// MarketEvent is published after an operation commits.
type MarketEvent struct {
	ID           string          `json:"id"`
	Type         EventType       `json:"type"`
	ItemID       uint64          `json:"item_id,omitempty"`
	PositionID   uint64          `json:"position_id,omitempty"`
	Actor        common.Address  `json:"actor"`
	Counterparty *common.Address `json:"counterparty,omitempty"`
	Units        uint64          `json:"units,omitempty"`
	Value        string          `json:"value,omitempty"`
	State        string          `json:"state,omitempty"`
	At           time.Time       `json:"at"`
}

// Channel returns the bus channel the event is published on.
func (e MarketEvent) Channel() string {
	return "market:" + string(e.Type)
}

// MarketStream is the durable stream every event is appended to.
const MarketStream = "market:events"
