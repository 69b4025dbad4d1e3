package service

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

func TestRaffleEntriesSumToTotal(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 2, alice, 0)
	h.fund(bob, 100)
	h.fund(carol, 100)

	raffleID, err := h.m.CreateRaffle(h.ctx, alice, res.PositionID, 2, 60)
	require.NoError(t, err)

	require.NoError(t, h.m.EnterRaffle(h.ctx, bob, raffleID, amt(10)))
	require.NoError(t, h.m.EnterRaffle(h.ctx, carol, raffleID, amt(20)))
	require.NoError(t, h.m.EnterRaffle(h.ctx, bob, raffleID, amt(30)))

	r := h.position(raffleID).Raffle
	require.Len(t, r.Entries, 3)
	var sum uint64
	for _, e := range r.Entries {
		sum += e.Contributed.Uint64()
	}
	assert.Equal(t, uint64(60), sum)
	assert.Equal(t, sum, r.TotalValue.Uint64())

	err = h.m.EnterRaffle(h.ctx, bob, raffleID, amt(0))
	require.ErrorIs(t, err, domain.ErrInsufficientPay)
}

func TestRaffleSettlesWithAnEntrant(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 2, alice, 0)
	h.fund(bob, 100)
	h.fund(carol, 100)

	raffleID, err := h.m.CreateRaffle(h.ctx, alice, res.PositionID, 2, 60)
	require.NoError(t, err)
	require.NoError(t, h.m.EnterRaffle(h.ctx, bob, raffleID, amt(40)))
	require.NoError(t, h.m.EnterRaffle(h.ctx, carol, raffleID, amt(60)))

	_, err = h.m.EndRaffle(h.ctx, dave, raffleID)
	require.ErrorIs(t, err, domain.ErrDeadlineNotReached)

	h.clock.Advance(time.Hour)
	err = h.m.EnterRaffle(h.ctx, bob, raffleID, amt(1))
	require.ErrorIs(t, err, domain.ErrAlreadyExpired)

	winner, err := h.m.EndRaffle(h.ctx, dave, raffleID)
	require.NoError(t, err)
	assert.Contains(t, []common.Address{bob, carol}, winner)
	assert.Equal(t, uint64(2), h.units(winner, res))

	it := h.item(res.ItemID)
	require.Len(t, it.Sales, 1)
	assert.Equal(t, winner, it.Sales[0].Buyer)
	assert.Equal(t, uint64(100), it.Sales[0].Price.Uint64())

	// fee 100*2.5% = 2
	assert.Equal(t, uint64(98), h.wallet(alice))
	assert.Equal(t, uint64(2), h.ledger(feeRecipient))
}

func TestEmptyRaffleReturnsPosition(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 6, alice, 0)

	raffleID, err := h.m.CreateRaffle(h.ctx, alice, res.PositionID, 2, 30)
	require.NoError(t, err)
	h.clock.Advance(30 * time.Minute)

	winner, err := h.m.EndRaffle(h.ctx, bob, raffleID)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, winner)

	assert.Empty(t, h.item(res.ItemID).Sales)
	assert.Equal(t, domain.StateClosed, h.position(raffleID).State)
	avail := h.position(res.PositionID)
	assert.Equal(t, domain.StateAvailable, avail.State)
	assert.Equal(t, uint64(6), avail.Amount)
	assert.Equal(t, alice, avail.Owner)
	assert.Equal(t, uint64(6), h.units(alice, res))
}

func TestPickEntryRanges(t *testing.T) {
	entries := []domain.RaffleEntry{
		{Bidder: bob, Contributed: amt(10)},
		{Bidder: carol, Contributed: amt(20)},
		{Bidder: dave, Contributed: amt(5)},
	}
	cases := []struct {
		x    uint64
		want common.Address
	}{
		{0, bob}, {9, bob}, {10, carol}, {29, carol}, {30, dave}, {34, dave},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, pickEntry(entries, uint256.NewInt(tc.x)), "x=%d", tc.x)
	}
}

func TestDrawWinnerIsDeterministic(t *testing.T) {
	r := &domain.RaffleData{
		Deadline:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		TotalValue: amt(30),
		Entries: []domain.RaffleEntry{
			{Bidder: bob, Contributed: amt(10)},
			{Bidder: carol, Contributed: amt(20)},
		},
	}
	at := r.Deadline.Add(time.Minute)
	first := drawWinner([]byte("seed"), 7, r, at)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, drawWinner([]byte("seed"), 7, r, at))
	}
	assert.Contains(t, []common.Address{bob, carol}, first)
}

func TestDrawWinnerFollowsWeights(t *testing.T) {
	r := &domain.RaffleData{
		Deadline:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		TotalValue: amt(100),
		Entries: []domain.RaffleEntry{
			{Bidder: bob, Contributed: amt(90)},
			{Bidder: carol, Contributed: amt(10)},
		},
	}
	wins := map[common.Address]int{}
	for i := uint64(0); i < 2000; i++ {
		wins[drawWinner([]byte("seed"), i, r, r.Deadline)]++
	}
	assert.Greater(t, wins[bob], wins[carol]*4)
	assert.Positive(t, wins[carol])
}

func TestRoyaltyRecipientThatRejectsPaymentsDoesNotBlockRaffle(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 2, carol, 1000)
	h.fund(bob, 200)
	h.bank.FailFor(carol, true)

	raffleID, err := h.m.CreateRaffle(h.ctx, alice, res.PositionID, 2, 60)
	require.NoError(t, err)
	require.NoError(t, h.m.EnterRaffle(h.ctx, bob, raffleID, amt(200)))

	h.clock.Advance(time.Hour)
	winner, err := h.m.EndRaffle(h.ctx, dave, raffleID)
	require.NoError(t, err)
	assert.Equal(t, bob, winner)

	// royalty 200*10% = 20, fee 180*2.5% = 4
	assert.Equal(t, uint64(20), h.ledger(carol))
	assert.Equal(t, uint64(4), h.ledger(feeRecipient))
	assert.Equal(t, uint64(176), h.wallet(alice))
	assert.Equal(t, uint64(2), h.units(bob, res))
}
