package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

func proposeLoan(t *testing.T, h *harness, res MintResult, units uint64) uint64 {
	t.Helper()
	loanID, err := h.m.ProposeLoan(h.ctx, alice, res.PositionID, units, LoanTerms{
		LoanAmount:      amt(1000),
		FeeAmount:       amt(50),
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	return loanID
}

func TestFundLoanAmounts(t *testing.T) {
	cases := []struct {
		name      string
		loan      uint64
		feeBps    uint32
		wantFee   uint64
		borrowGot uint64
	}{
		{"one percent", 1000, 100, 10, 990},
		{"rounds down", 999, 100, 9, 990},
		{"no fee", 500, 0, 0, 500},
		{"whole loan", 700, 10_000, 700, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.m.SetMarketFee(h.ctx, marketOwner, domain.StateOnLoan, tc.feeBps))
			res := h.mint(alice, 1, alice, 0)
			h.fund(bob, tc.loan)

			loanID, err := h.m.ProposeLoan(h.ctx, alice, res.PositionID, 1, LoanTerms{
				LoanAmount:      amt(tc.loan),
				FeeAmount:       amt(1),
				DurationMinutes: 60,
			})
			require.NoError(t, err)
			require.NoError(t, h.m.FundLoan(h.ctx, bob, loanID, amt(tc.loan)))

			assert.Equal(t, tc.borrowGot, h.wallet(alice))
			assert.Equal(t, tc.wantFee, h.ledger(feeRecipient))
			assert.Equal(t, uint64(0), h.wallet(bob))

			l := h.position(loanID).Loan
			require.NotNil(t, l.Lender)
			assert.Equal(t, bob, *l.Lender)
			require.NotNil(t, l.Deadline)
			assert.Equal(t, h.clock.Now().Add(time.Hour), *l.Deadline)
		})
	}
}

func TestFundLoanValidation(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 1, alice, 0)
	h.fund(bob, 5000)
	h.fund(carol, 5000)
	loanID := proposeLoan(t, h, res, 1)

	err := h.m.FundLoan(h.ctx, bob, loanID, amt(999))
	require.ErrorIs(t, err, domain.ErrInsufficientPay)

	require.NoError(t, h.m.FundLoan(h.ctx, bob, loanID, amt(1000)))
	err = h.m.FundLoan(h.ctx, carol, loanID, amt(1000))
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.m.UnlistLoanProposal(h.ctx, alice, loanID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRepayLoan(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 3, alice, 0)
	h.fund(bob, 1000)
	loanID := proposeLoan(t, h, res, 3)
	require.NoError(t, h.m.FundLoan(h.ctx, bob, loanID, amt(1000)))
	require.Equal(t, uint64(990), h.wallet(alice))
	h.fund(alice, 60)

	_, err := h.m.RepayLoan(h.ctx, alice, loanID, amt(1000))
	require.ErrorIs(t, err, domain.ErrInsufficientPay)
	_, err = h.m.RepayLoan(h.ctx, bob, loanID, amt(1050))
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	availID, err := h.m.RepayLoan(h.ctx, alice, loanID, amt(1050))
	require.NoError(t, err)
	assert.Equal(t, uint64(1050), h.wallet(bob))
	assert.Equal(t, uint64(0), h.wallet(alice))
	assert.Equal(t, uint64(3), h.units(alice, res))

	p := h.position(availID)
	assert.Equal(t, domain.StateAvailable, p.State)
	assert.Nil(t, p.Loan)
	assert.Empty(t, h.item(res.ItemID).Sales)
	assert.Equal(t, uint64(0), h.count(domain.StateOnLoan))
}

func TestRepayUnfundedLoanFails(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 1, alice, 0)
	h.fund(alice, 2000)
	loanID := proposeLoan(t, h, res, 1)

	_, err := h.m.RepayLoan(h.ctx, alice, loanID, amt(1050))
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestLiquidateLoan(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 3, alice, 0)
	h.fund(bob, 1000)
	loanID := proposeLoan(t, h, res, 2)

	_, err := h.m.LiquidateLoan(h.ctx, bob, loanID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, h.m.FundLoan(h.ctx, bob, loanID, amt(1000)))

	_, err = h.m.LiquidateLoan(h.ctx, carol, loanID)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = h.m.LiquidateLoan(h.ctx, bob, loanID)
	require.ErrorIs(t, err, domain.ErrDeadlineNotReached)

	h.clock.Advance(time.Hour)
	availID, err := h.m.LiquidateLoan(h.ctx, bob, loanID)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), h.units(bob, res))
	assert.Equal(t, uint64(1), h.units(alice, res))
	p := h.position(availID)
	assert.Equal(t, bob, p.Owner)
	assert.Equal(t, domain.StateAvailable, p.State)
	assert.Equal(t, domain.StateClosed, h.position(loanID).State)

	it := h.item(res.ItemID)
	require.Len(t, it.Sales, 1)
	assert.Equal(t, alice, it.Sales[0].Seller)
	assert.Equal(t, bob, it.Sales[0].Buyer)
	assert.Equal(t, uint64(2), it.Sales[0].Amount)
	assert.Equal(t, uint64(1050), it.Sales[0].Price.Uint64())
}

func TestUnlistLoanProposal(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 1, alice, 0)
	loanID := proposeLoan(t, h, res, 1)

	_, err := h.m.UnlistLoanProposal(h.ctx, bob, loanID)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	availID, err := h.m.UnlistLoanProposal(h.ctx, alice, loanID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAvailable, h.position(availID).State)
	assert.Equal(t, uint64(1), h.units(alice, res))
}

func TestProposeLoanValidation(t *testing.T) {
	h := newHarness(t)
	res := h.mint(alice, 1, alice, 0)

	_, err := h.m.ProposeLoan(h.ctx, alice, res.PositionID, 1, LoanTerms{DurationMinutes: 10})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = h.m.ProposeLoan(h.ctx, alice, res.PositionID, 1, LoanTerms{LoanAmount: amt(1)})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}
