package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

func TestSaleEndToEnd(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 10, carol, 1000)
	h.fund(bob, 1000)

	saleID, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 10, amt(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), h.units(custodian, res))
	assert.Equal(t, uint64(1), h.count(domain.StateOnSale))
	assert.Equal(t, uint64(0), h.count(domain.StateAvailable))

	boughtID, err := h.m.Buy(h.ctx, bob, saleID, 10, amt(1000))
	require.NoError(t, err)

	// royalty 100, fee (1000-100)*2.5% = 22, seller 878
	assert.Equal(t, uint64(878), h.wallet(alice))
	assert.Equal(t, uint64(0), h.wallet(bob))
	assert.Equal(t, uint64(100), h.ledger(carol))
	assert.Equal(t, uint64(22), h.ledger(feeRecipient))
	assert.Equal(t, uint64(10), h.units(bob, res))
	assert.Equal(t, uint64(0), h.units(custodian, res))

	it := h.item(res.ItemID)
	require.Len(t, it.Sales, 1)
	sale := it.Sales[0]
	assert.Equal(t, alice, sale.Seller)
	assert.Equal(t, bob, sale.Buyer)
	assert.Equal(t, uint64(10), sale.Amount)
	assert.Equal(t, uint64(1000), sale.Price.Uint64())
	assert.Equal(t, []uint64{boughtID}, it.PositionIDs)

	bought := h.position(boughtID)
	assert.Equal(t, domain.StateAvailable, bought.State)
	assert.Equal(t, bob, bought.Owner)
	assert.Equal(t, domain.StateClosed, h.position(saleID).State)
	assert.Equal(t, uint64(0), h.count(domain.StateOnSale))
	assert.Equal(t, uint64(1), h.count(domain.StateAvailable))
}

func TestPartialListingSplitsPosition(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 10, alice, 0)

	saleID, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 4, amt(400))
	require.NoError(t, err)
	assert.NotEqual(t, res.PositionID, saleID)

	src := h.position(res.PositionID)
	listed := h.position(saleID)
	assert.Equal(t, uint64(10), src.Amount+listed.Amount)
	assert.Equal(t, domain.StateAvailable, src.State)
	assert.Equal(t, domain.StateOnSale, listed.State)
	assert.Equal(t, uint32(250), listed.MarketFeeBps)
	assert.Equal(t, uint64(6), h.units(alice, res))
}

func TestPartialBuy(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 10, alice, 0)
	h.fund(bob, 1000)
	h.fund(carol, 1000)

	saleID, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 10, amt(1000))
	require.NoError(t, err)

	_, err = h.m.Buy(h.ctx, bob, saleID, 3, amt(299))
	require.ErrorIs(t, err, domain.ErrInsufficientPay)
	_, err = h.m.Buy(h.ctx, bob, saleID, 3, amt(301))
	require.ErrorIs(t, err, domain.ErrInsufficientPay)
	_, err = h.m.Buy(h.ctx, bob, saleID, 11, amt(1100))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.m.Buy(h.ctx, bob, saleID, 3, amt(300))
	require.NoError(t, err)
	rest := h.position(saleID)
	assert.Equal(t, uint64(7), rest.Amount)
	assert.Equal(t, uint64(700), rest.Sale.Price.Uint64())
	assert.Equal(t, domain.StateOnSale, rest.State)

	_, err = h.m.Buy(h.ctx, carol, saleID, 7, amt(700))
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, h.position(saleID).State)
	assert.Equal(t, uint64(3), h.units(bob, res))
	assert.Equal(t, uint64(7), h.units(carol, res))
	assert.Len(t, h.item(res.ItemID).Sales, 2)
}

func TestBuyMergesIntoBuyersAvailable(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 10, alice, 0)
	h.fund(bob, 1000)

	saleID, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 10, amt(1000))
	require.NoError(t, err)
	first, err := h.m.Buy(h.ctx, bob, saleID, 2, amt(200))
	require.NoError(t, err)
	second, err := h.m.Buy(h.ctx, bob, saleID, 3, amt(300))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, uint64(5), h.position(first).Amount)
}

func TestRoyaltyRecipientThatRejectsPaymentsDoesNotBlockSale(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 10, carol, 1000)
	h.fund(bob, 1000)
	h.bank.FailFor(carol, true)

	saleID, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 10, amt(1000))
	require.NoError(t, err)
	_, err = h.m.Buy(h.ctx, bob, saleID, 10, amt(1000))
	require.NoError(t, err)

	assert.Equal(t, uint64(100), h.ledger(carol))
	assert.Equal(t, uint64(878), h.wallet(alice))
	assert.Equal(t, uint64(10), h.units(bob, res))

	_, err = h.m.Withdraw(h.ctx, carol)
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.Equal(t, uint64(100), h.ledger(carol), "failed withdrawal keeps the balance")

	h.bank.FailFor(carol, false)
	paid, err := h.m.Withdraw(h.ctx, carol)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), paid.Uint64())
	assert.Equal(t, uint64(100), h.wallet(carol))
}

func TestFailedSellerPayoutRollsBackEverything(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 10, carol, 1000)
	h.fund(bob, 1000)

	saleID, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 10, amt(1000))
	require.NoError(t, err)
	h.bank.FailFor(alice, true)

	_, err = h.m.Buy(h.ctx, bob, saleID, 10, amt(1000))
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	assert.Equal(t, uint64(1000), h.wallet(bob))
	assert.Equal(t, uint64(0), h.units(bob, res))
	assert.Equal(t, uint64(10), h.units(custodian, res))
	assert.Equal(t, uint64(0), h.ledger(carol))
	assert.Equal(t, uint64(0), h.ledger(feeRecipient))
	p := h.position(saleID)
	assert.Equal(t, domain.StateOnSale, p.State)
	assert.Equal(t, uint64(10), p.Amount)
	assert.Empty(t, h.item(res.ItemID).Sales)
}

func TestBuyWithoutFundsFails(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 1, alice, 0)
	saleID, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 1, amt(50))
	require.NoError(t, err)

	_, err = h.m.Buy(h.ctx, bob, saleID, 1, amt(50))
	require.ErrorIs(t, err, domain.ErrInsufficientPay)
	assert.Equal(t, domain.StateOnSale, h.position(saleID).State)
}

func TestUnlistMergesBackIntoAvailable(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 10, alice, 0)

	saleID, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 4, amt(400))
	require.NoError(t, err)

	_, err = h.m.Unlist(h.ctx, bob, saleID)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	availID, err := h.m.Unlist(h.ctx, alice, saleID)
	require.NoError(t, err)
	assert.Equal(t, res.PositionID, availID)
	assert.Equal(t, uint64(10), h.position(availID).Amount)
	assert.Equal(t, domain.StateClosed, h.position(saleID).State)
	assert.Equal(t, uint64(10), h.units(alice, res))

	_, err = h.m.Unlist(h.ctx, alice, saleID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestUnlistWholeListingRestoresPosition(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 3, alice, 0)

	saleID, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 3, amt(30))
	require.NoError(t, err)
	assert.Equal(t, res.PositionID, saleID)

	availID, err := h.m.Unlist(h.ctx, alice, saleID)
	require.NoError(t, err)
	p := h.position(availID)
	assert.Equal(t, domain.StateAvailable, p.State)
	assert.Nil(t, p.Sale)
	assert.Zero(t, p.MarketFeeBps)
}

func TestPutOnSaleValidation(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 5, alice, 0)

	_, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 5, amt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = h.m.PutOnSale(h.ctx, alice, res.PositionID, 6, amt(10))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = h.m.PutOnSale(h.ctx, alice, res.PositionID, 0, amt(10))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = h.m.PutOnSale(h.ctx, alice, 999, 1, amt(10))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	saleID, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 5, amt(10))
	require.NoError(t, err)
	_, err = h.m.PutOnSale(h.ctx, alice, saleID, 1, amt(10))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.m.CreateAuction(h.ctx, alice, saleID, 1, 10, amt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestListingFeeIsSnapshotted(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 10, alice, 0)
	h.fund(bob, 1000)

	saleID, err := h.m.PutOnSale(h.ctx, alice, res.PositionID, 10, amt(1000))
	require.NoError(t, err)
	require.NoError(t, h.m.SetMarketFee(h.ctx, marketOwner, domain.StateOnSale, 5000))

	_, err = h.m.Buy(h.ctx, bob, saleID, 10, amt(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(25), h.ledger(feeRecipient))
	assert.Equal(t, uint64(975), h.wallet(alice))
}
