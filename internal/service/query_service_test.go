package service

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

func TestPageWindow(t *testing.T) {
	cases := []struct {
		page, size, total int
		offset, pages     int
		wantErr           bool
	}{
		{page: 1, size: 2, total: 5, offset: 0, pages: 3},
		{page: 3, size: 2, total: 5, offset: 4, pages: 3},
		{page: 4, size: 2, total: 5, pages: 3, wantErr: true},
		{page: 0, size: 2, total: 5, wantErr: true},
		{page: 1, size: 0, total: 5, wantErr: true},
		{page: 1, size: 10, total: 0, pages: 0, wantErr: true},
	}
	for _, tc := range cases {
		offset, pages, err := pageWindow(tc.page, tc.size, tc.total)
		if tc.wantErr {
			assert.ErrorIs(t, err, domain.ErrInvalidPage, "%+v", tc)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.offset, offset)
		assert.Equal(t, tc.pages, pages)
	}
}

func TestFetchPositionsPage(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.mint(alice, 1, alice, 0)
	}
	h.mint(bob, 1, bob, 0)

	owner := alice
	page, err := h.m.FetchPositionsPage(h.ctx, domain.PositionFilter{Owner: &owner}, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Records, 1)
	assert.Equal(t, uint64(5), page.Records[0].ID)

	_, err = h.m.FetchPositionsPage(h.ctx, domain.PositionFilter{Owner: &owner}, 4, 2)
	require.ErrorIs(t, err, domain.ErrInvalidPage)

	st := domain.StateOnSale
	_, err = h.m.FetchPositionsPage(h.ctx, domain.PositionFilter{State: &st}, 1, 2)
	require.ErrorIs(t, err, domain.ErrInvalidPage)
}

func TestParticipantFilters(t *testing.T) {
	h := newHarness(t)
	a := h.mint(alice, 1, alice, 0)
	r := h.mint(alice, 1, alice, 0)
	l := h.mint(alice, 1, alice, 0)
	h.fund(bob, 5000)

	auctionID, err := h.m.CreateAuction(h.ctx, alice, a.PositionID, 1, 60, amt(1))
	require.NoError(t, err)
	require.NoError(t, h.m.Bid(h.ctx, bob, auctionID, amt(5)))

	raffleID, err := h.m.CreateRaffle(h.ctx, alice, r.PositionID, 1, 60)
	require.NoError(t, err)
	require.NoError(t, h.m.EnterRaffle(h.ctx, bob, raffleID, amt(5)))

	loanID, err := h.m.ProposeLoan(h.ctx, alice, l.PositionID, 1, LoanTerms{LoanAmount: amt(100), DurationMinutes: 10})
	require.NoError(t, err)
	require.NoError(t, h.m.FundLoan(h.ctx, bob, loanID, amt(100)))

	who := bob
	for _, tc := range []struct {
		name string
		f    domain.PositionFilter
		want uint64
	}{
		{"bids", domain.PositionFilter{Bidder: &who}, auctionID},
		{"raffles", domain.PositionFilter{Entrant: &who}, raffleID},
		{"loans", domain.PositionFilter{Lender: &who}, loanID},
	} {
		page, err := h.m.FetchPositionsPage(h.ctx, tc.f, 1, 10)
		require.NoError(t, err, tc.name)
		require.Len(t, page.Records, 1, tc.name)
		assert.Equal(t, tc.want, page.Records[0].ID, tc.name)
	}
}

func TestFetchItemsPageByCreator(t *testing.T) {
	h := newHarness(t)
	h.mint(alice, 1, alice, 0)
	h.mint(bob, 1, bob, 0)
	h.mint(alice, 1, alice, 0)

	creator := alice
	page, err := h.m.FetchItemsPage(h.ctx, domain.ItemFilter{Creator: &creator}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, uint64(1), page.Records[0].ID)
	assert.Equal(t, uint64(3), page.Records[1].ID)
	assert.Equal(t, 1, page.TotalPages)
}

type mapCache struct {
	mu   sync.Mutex
	data map[domain.ItemKey]domain.TokenMetadata
	sets int
}

func (c *mapCache) Get(_ context.Context, key domain.ItemKey) (domain.TokenMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	md, ok := c.data[key]
	if !ok {
		return domain.TokenMetadata{}, domain.ErrNotFound
	}
	return md, nil
}

func (c *mapCache) Set(_ context.Context, key domain.ItemKey, md domain.TokenMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = md
	c.sets++
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, key domain.ItemKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func TestFetchMetadataUsesCache(t *testing.T) {
	h := newHarness(t)
	cache := &mapCache{data: map[domain.ItemKey]domain.TokenMetadata{}}
	h.m.WithMetadataCache(cache)
	res := h.mint(alice, 4, alice, 0)

	md, err := h.m.FetchMetadata(h.ctx, res.ItemID)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://item", md.URI)
	assert.Equal(t, uint64(4), md.TotalSupply)
	assert.Equal(t, "1", md.TokenID)

	_, err = h.m.FetchMetadata(h.ctx, res.ItemID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
}

func TestConcurrentBuysSettleOnce(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 1, alice, 0)
	saleID, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 1, amt(10))
	require.NoError(t, err)
	buyers := []common.Address{bob, carol, dave}
	for _, b := range buyers {
		h.fund(b, 10)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(buyers))
	for i, b := range buyers {
		wg.Add(1)
		go func(i int, b common.Address) {
			defer wg.Done()
			_, errs[i] = h.m.Buy(h.ctx, b, saleID, 1, amt(10))
		}(i, b)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, h.item(res.ItemID).Sales, 1)
}
