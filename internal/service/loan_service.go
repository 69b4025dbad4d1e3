package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// LoanTerms are the borrower's proposed terms.
type LoanTerms struct {
	LoanAmount      domain.Amount
	FeeAmount       domain.Amount
	DurationMinutes uint64
}

// ProposeLoan puts amount units of an Available position up as collateral
// for a loan on terms. It returns the OnLoan position id.
func (m *Marketplace) ProposeLoan(ctx context.Context, caller common.Address, positionID, amount uint64, terms LoanTerms) (uint64, error) {
	var listedID uint64
	err := m.mutate(ctx, "propose loan", caller, true, func(o *op) error {
		if terms.LoanAmount.IsZero() {
			return fmt.Errorf("zero loan amount: %w", domain.ErrInvalidAmount)
		}
		if terms.DurationMinutes == 0 {
			return fmt.Errorf("zero duration: %w", domain.ErrInvalidAmount)
		}
		if _, err := domain.AddAmount(terms.LoanAmount, terms.FeeAmount); err != nil {
			return err
		}
		src, err := o.ownedPosition(positionID, domain.StateAvailable)
		if err != nil {
			return err
		}
		item, err := o.tx.GetItem(o.ctx, src.ItemID)
		if err != nil {
			return err
		}
		data := &domain.LoanData{
			LoanAmount:      terms.LoanAmount,
			FeeAmount:       terms.FeeAmount,
			DurationMinutes: terms.DurationMinutes,
		}
		listed, err := o.list(src, amount, domain.StateOnLoan, domain.StateData{Loan: data})
		if err != nil {
			return err
		}
		if err := o.intoCustody(item, caller, amount); err != nil {
			return err
		}
		listedID = listed.ID
		o.emit(domain.MarketEvent{
			Type:       domain.EventPositionListed,
			ItemID:     item.ID,
			PositionID: listed.ID,
			Units:      amount,
			Value:      terms.LoanAmount.Dec(),
			State:      domain.StateOnLoan.String(),
		})
		return nil
	})
	return listedID, err
}

// UnlistLoanProposal withdraws an unfunded loan proposal.
func (m *Marketplace) UnlistLoanProposal(ctx context.Context, caller common.Address, positionID uint64) (uint64, error) {
	return m.unlist(ctx, "unlist loan proposal", caller, positionID, domain.StateOnLoan)
}

// FundLoan lends exactly the proposed amount. The market fee is taken from
// the loan and credited to the fee recipient; the borrower is paid the rest.
func (m *Marketplace) FundLoan(ctx context.Context, caller common.Address, positionID uint64, payment domain.Amount) error {
	return m.mutate(ctx, "fund loan", caller, true, func(o *op) error {
		p, err := o.position(positionID, domain.StateOnLoan)
		if err != nil {
			return err
		}
		l := p.Loan
		if l.Lender != nil {
			return fmt.Errorf("loan %d already funded: %w", p.ID, domain.ErrInvalidTransition)
		}
		if !payment.Eq(&l.LoanAmount) {
			return fmt.Errorf("payment %s, loan %s: %w", payment.Dec(), l.LoanAmount.Dec(), domain.ErrInsufficientPay)
		}
		fee, err := domain.ApplyBps(l.LoanAmount, p.MarketFeeBps)
		if err != nil {
			return err
		}
		toBorrower, err := domain.SubAmount(l.LoanAmount, fee)
		if err != nil {
			return err
		}

		lender := caller
		deadline := o.now.Add(time.Duration(l.DurationMinutes) * time.Minute)
		l.Lender = &lender
		l.Deadline = &deadline
		if err := o.tx.UpdatePosition(o.ctx, p); err != nil {
			return err
		}
		if err := o.receive(caller, payment); err != nil {
			return err
		}
		if err := o.credit(m.cfg.FeeRecipient, fee); err != nil {
			return err
		}
		if err := o.pay(p.Owner, toBorrower); err != nil {
			return err
		}
		borrower := p.Owner
		o.emit(domain.MarketEvent{
			Type:         domain.EventLoanFunded,
			ItemID:       p.ItemID,
			PositionID:   p.ID,
			Counterparty: &borrower,
			Units:        p.Amount,
			Value:        payment.Dec(),
			State:        domain.StateOnLoan.String(),
		})
		return nil
	})
}

// RepayLoan repays a funded loan in full. The payment goes straight to the
// lender and the collateral returns to the borrower.
func (m *Marketplace) RepayLoan(ctx context.Context, caller common.Address, positionID uint64, payment domain.Amount) (uint64, error) {
	var availID uint64
	err := m.mutate(ctx, "repay loan", caller, true, func(o *op) error {
		p, err := o.ownedPosition(positionID, domain.StateOnLoan)
		if err != nil {
			return err
		}
		l := *p.Loan
		if l.Lender == nil {
			return fmt.Errorf("loan %d not funded: %w", p.ID, domain.ErrInvalidTransition)
		}
		due, err := domain.AddAmount(l.LoanAmount, l.FeeAmount)
		if err != nil {
			return err
		}
		if !payment.Eq(&due) {
			return fmt.Errorf("payment %s, due %s: %w", payment.Dec(), due.Dec(), domain.ErrInsufficientPay)
		}
		item, err := o.tx.GetItem(o.ctx, p.ItemID)
		if err != nil {
			return err
		}
		lender := *l.Lender

		if err := o.receive(caller, payment); err != nil {
			return err
		}
		if err := o.outOfCustody(item, p.Owner, p.Amount); err != nil {
			return err
		}
		avail, err := o.returnAvailable(p)
		if err != nil {
			return err
		}
		if err := o.pay(lender, payment); err != nil {
			return err
		}
		availID = avail.ID
		o.emit(domain.MarketEvent{
			Type:         domain.EventLoanRepaid,
			ItemID:       item.ID,
			PositionID:   p.ID,
			Counterparty: &lender,
			Units:        p.Amount,
			Value:        payment.Dec(),
			State:        domain.StateAvailable.String(),
		})
		return nil
	})
	return availID, err
}

// LiquidateLoan hands the collateral of an overdue loan to its lender and
// records the transfer as a sale at the amount that was due.
func (m *Marketplace) LiquidateLoan(ctx context.Context, caller common.Address, positionID uint64) (uint64, error) {
	var availID uint64
	err := m.mutate(ctx, "liquidate loan", caller, true, func(o *op) error {
		p, err := o.position(positionID, domain.StateOnLoan)
		if err != nil {
			return err
		}
		l := *p.Loan
		if l.Lender == nil {
			return fmt.Errorf("loan %d not funded: %w", p.ID, domain.ErrInvalidTransition)
		}
		if *l.Lender != caller {
			return fmt.Errorf("loan %d lent by %s: %w", p.ID, l.Lender.Hex(), domain.ErrUnauthorized)
		}
		if o.now.Before(*l.Deadline) {
			return fmt.Errorf("loan %d due at %s: %w", p.ID, l.Deadline.Format(time.RFC3339), domain.ErrDeadlineNotReached)
		}
		due, err := domain.AddAmount(l.LoanAmount, l.FeeAmount)
		if err != nil {
			return err
		}
		item, err := o.tx.GetItem(o.ctx, p.ItemID)
		if err != nil {
			return err
		}
		borrower := p.Owner
		units := p.Amount

		if err := o.outOfCustody(item, caller, units); err != nil {
			return err
		}
		if err := o.consume(&p, units); err != nil {
			return err
		}
		avail, err := o.deliverAvailable(item.ID, caller, units)
		if err != nil {
			return err
		}
		if err := o.appendSale(item.ID, borrower, caller, units, due); err != nil {
			return err
		}
		availID = avail.ID
		o.emit(domain.MarketEvent{
			Type:         domain.EventLoanLiquidated,
			ItemID:       item.ID,
			PositionID:   p.ID,
			Counterparty: &borrower,
			Units:        units,
			Value:        due.Dec(),
			State:        domain.StateClosed.String(),
		})
		return nil
	})
	return availID, err
}
