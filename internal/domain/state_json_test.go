package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateDataJSONKeepsAuctionBidder(t *testing.T) {
	bidder := common.HexToAddress("0xb0b")
	in := StateData{Auction: &AuctionData{
		Deadline:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		MinBid:        NewAmount(50),
		HighestBid:    NewAmount(62),
		HighestBidder: &bidder,
	}}
	raw, err := json.Marshal(EncodeStateData(in))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"highest_bid":"62"`)

	var j StateDataJSON
	require.NoError(t, json.Unmarshal(raw, &j))
	out, err := j.Decode()
	require.NoError(t, err)
	require.NotNil(t, out.Auction)
	assert.Equal(t, bidder, *out.Auction.HighestBidder)
	assert.Equal(t, uint64(62), out.Auction.HighestBid.Uint64())
	assert.True(t, in.Auction.Deadline.Equal(out.Auction.Deadline))
	assert.Nil(t, out.Sale)
}

func TestStateDataJSONRejectsBadAmount(t *testing.T) {
	_, err := StateDataJSON{Sale: &SaleJSON{Price: "ten"}}.Decode()
	assert.Error(t, err)
}

func TestStateDataValidate(t *testing.T) {
	sale := StateData{Sale: &SaleData{Price: NewAmount(1)}}
	assert.NoError(t, sale.Validate(StateOnSale))
	assert.ErrorIs(t, sale.Validate(StateOnAuction), ErrInvalidTransition)
	assert.ErrorIs(t, StateData{}.Validate(StateOnLoan), ErrInvalidTransition)
	assert.NoError(t, StateData{}.Validate(StateAvailable))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateAvailable, StateOnRaffle))
	assert.True(t, CanTransition(StateOnLoan, StateAvailable))
	assert.True(t, CanTransition(StateOnSale, StateClosed))
	assert.False(t, CanTransition(StateOnSale, StateOnAuction))
	assert.False(t, CanTransition(StateAvailable, StateClosed))
	assert.False(t, CanTransition(StateClosed, StateAvailable))
}

func TestParseState(t *testing.T) {
	s, err := ParseState("on_auction")
	require.NoError(t, err)
	assert.Equal(t, StateOnAuction, s)
	s, err = ParseState("4")
	require.NoError(t, err)
	assert.Equal(t, StateOnLoan, s)
	_, err = ParseState("sold")
	assert.Error(t, err)
}

func TestAmountHelpers(t *testing.T) {
	_, err := SubAmount(NewAmount(1), NewAmount(2))
	assert.ErrorIs(t, err, ErrAmountOverflow)

	max, err := ParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)
	_, err = AddAmount(max, NewAmount(1))
	assert.ErrorIs(t, err, ErrAmountOverflow)

	v, err := MulDiv(max, 3, 4)
	require.NoError(t, err)
	assert.True(t, v.Lt(&max))

	fee, err := ApplyBps(NewAmount(999), 250)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), fee.Uint64())
}
