package service

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// DefaultAntiSnipeWindow is the trailing interval before an auction deadline
// in which a bid pushes the deadline out.
const DefaultAntiSnipeWindow = 10 * time.Minute

// Config holds the fixed parameters of one market instance.
type Config struct {
	// Owner may change fees and designate a successor.
	Owner common.Address
	// FeeRecipient is credited every market fee.
	FeeRecipient common.Address
	// Custodian is the address that holds listed units.
	Custodian common.Address
	// DefaultFees apply to mechanism states whose fee was never set.
	DefaultFees     map[domain.State]uint32
	AntiSnipeWindow time.Duration
	// RaffleSeed is mixed into every raffle draw.
	RaffleSeed []byte
}

// EventNotifier forwards committed market events to operators.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, evt domain.MarketEvent) error
}

// Marketplace is the exchange engine. Every mutating operation runs as one
// store transaction: state checks and writes first, then the external token
// and currency effects in a fixed order. A failing effect undoes the effects
// before it and rolls the transaction back.
type Marketplace struct {
	store    domain.MarketStore
	tokens   domain.TokenDirectory
	bank     domain.Bank
	clock    domain.Clock
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier EventNotifier
	cache    domain.MetadataCache
	cfg      Config
	logger   *slog.Logger
}

// NewMarketplace creates a Marketplace with its required collaborators.
func NewMarketplace(
	store domain.MarketStore,
	tokens domain.TokenDirectory,
	bank domain.Bank,
	clock domain.Clock,
	cfg Config,
	logger *slog.Logger,
) *Marketplace {
	if cfg.AntiSnipeWindow <= 0 {
		cfg.AntiSnipeWindow = DefaultAntiSnipeWindow
	}
	return &Marketplace{
		store:  store,
		tokens: tokens,
		bank:   bank,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "marketplace")),
	}
}

// WithSignalBus publishes committed events on bus.
func (m *Marketplace) WithSignalBus(bus domain.SignalBus) *Marketplace {
	m.bus = bus
	return m
}

// WithAuditStore records committed events in the audit log.
func (m *Marketplace) WithAuditStore(audit domain.AuditStore) *Marketplace {
	m.audit = audit
	return m
}

// WithNotifier forwards committed events to n.
func (m *Marketplace) WithNotifier(n EventNotifier) *Marketplace {
	m.notifier = n
	return m
}

// WithMetadataCache caches token metadata lookups.
func (m *Marketplace) WithMetadataCache(c domain.MetadataCache) *Marketplace {
	m.cache = c
	return m
}

// Owner returns the market owner address.
func (m *Marketplace) Owner() common.Address { return m.cfg.Owner }

// effect is an external call made after the state checks pass, inside the
// store transaction and before its commit. revert is nil for payouts: funds
// sent to a wallet cannot be recalled. Payouts run after every other effect,
// so only a failed commit can leave one behind; compensate then reverts the
// rest and logs the payout for reconciliation.
type effect struct {
	desc   string
	apply  func(ctx context.Context) error
	revert func(ctx context.Context) error
}

// op carries one operation through its transaction.
type op struct {
	m       *Marketplace
	ctx     context.Context
	tx      domain.MarketTx
	caller  common.Address
	now     time.Time
	effects []effect
	applied int
	events  []domain.MarketEvent
}

// mutate runs fn as a market transaction. Guarded operations fail once a
// successor has been designated.
func (m *Marketplace) mutate(ctx context.Context, name string, caller common.Address, guarded bool, fn func(o *op) error) error {
	var o *op
	err := m.store.InTx(ctx, func(tx domain.MarketTx) error {
		o = &op{m: m, ctx: ctx, tx: tx, caller: caller, now: m.clock.Now().UTC()}
		if guarded {
			if err := o.requireCurrentVersion(); err != nil {
				return err
			}
		}
		if err := fn(o); err != nil {
			return err
		}
		if err := o.checkSolvency(); err != nil {
			return err
		}
		return o.execute()
	})
	if err != nil {
		// The store failed to commit after the effects ran.
		if o != nil && o.applied > 0 {
			o.compensate()
		}
		m.logger.DebugContext(ctx, "marketplace: operation failed",
			slog.String("op", name),
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service: %s: %w", name, err)
	}
	m.publish(ctx, o.events)
	return nil
}

// view runs fn against a read-only transaction.
func (m *Marketplace) view(ctx context.Context, name string, fn func(tx domain.MarketTx) error) error {
	if err := m.store.View(ctx, fn); err != nil {
		return fmt.Errorf("service: %s: %w", name, err)
	}
	return nil
}

func (o *op) requireCurrentVersion() error {
	succ, err := o.tx.Successor(o.ctx)
	if err != nil {
		return err
	}
	if succ != (common.Address{}) {
		return fmt.Errorf("superseded by %s: %w", succ.Hex(), domain.ErrNotCurrentVersion)
	}
	return nil
}

func (o *op) requireOwner() error {
	if o.caller != o.m.cfg.Owner {
		return fmt.Errorf("caller %s is not the market owner: %w", o.caller.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

// checkSolvency verifies that ledger balances are covered by custody once
// the operation's payouts are deducted.
func (o *op) checkSolvency() error {
	total, err := o.tx.LedgerTotal(o.ctx)
	if err != nil {
		return err
	}
	custody, err := o.tx.Custody(o.ctx)
	if err != nil {
		return err
	}
	if total.Gt(&custody) {
		return fmt.Errorf("ledger %s exceeds custody %s", total.Dec(), custody.Dec())
	}
	return nil
}

// execute applies the effects, reversible ones first so that a failed
// transfer never strands a payout.
func (o *op) execute() error {
	slices.SortStableFunc(o.effects, func(a, b effect) int {
		return cmp.Compare(payoutRank(a), payoutRank(b))
	})
	for i, e := range o.effects {
		if err := e.apply(o.ctx); err != nil {
			o.applied = i
			o.compensate()
			return fmt.Errorf("%s: %w", e.desc, err)
		}
	}
	o.applied = len(o.effects)
	return nil
}

func payoutRank(e effect) int {
	if e.revert == nil {
		return 1
	}
	return 0
}

// sentPayouts describes the applied effects that cannot be reverted.
func (o *op) sentPayouts() []string {
	var out []string
	for _, e := range o.effects[:o.applied] {
		if e.revert == nil {
			out = append(out, e.desc)
		}
	}
	return out
}

// compensate reverts applied effects in reverse order. Payouts already sent
// are logged for reconciliation.
func (o *op) compensate() {
	ctx := context.WithoutCancel(o.ctx)
	if sent := o.sentPayouts(); len(sent) > 0 {
		o.m.logger.ErrorContext(ctx, "marketplace: payouts cannot be reverted",
			slog.Any("payouts", sent))
	}
	for i := o.applied - 1; i >= 0; i-- {
		e := o.effects[i]
		if e.revert == nil {
			continue
		}
		if err := e.revert(ctx); err != nil {
			o.m.logger.ErrorContext(ctx, "marketplace: revert failed",
				slog.String("effect", e.desc),
				slog.String("error", err.Error()),
			)
		}
	}
	o.applied = 0
}

// receive collects payment from the caller into custody.
func (o *op) receive(from common.Address, amt domain.Amount) error {
	if amt.IsZero() {
		return nil
	}
	if err := o.adjustCustody(amt, true); err != nil {
		return err
	}
	bank := o.m.bank
	o.effects = append(o.effects, effect{
		desc:   fmt.Sprintf("receive %s from %s", amt.Dec(), from.Hex()),
		apply:  func(ctx context.Context) error { return bank.Receive(ctx, from, amt) },
		revert: func(ctx context.Context) error { return bank.Pay(ctx, from, amt) },
	})
	return nil
}

// pay sends custodied funds directly to a wallet.
func (o *op) pay(to common.Address, amt domain.Amount) error {
	if amt.IsZero() {
		return nil
	}
	if err := o.adjustCustody(amt, false); err != nil {
		return err
	}
	bank := o.m.bank
	o.effects = append(o.effects, effect{
		desc:  fmt.Sprintf("pay %s to %s", amt.Dec(), to.Hex()),
		apply: func(ctx context.Context) error { return bank.Pay(ctx, to, amt) },
	})
	return nil
}

func (o *op) adjustCustody(amt domain.Amount, in bool) error {
	cur, err := o.tx.Custody(o.ctx)
	if err != nil {
		return err
	}
	var next domain.Amount
	if in {
		next, err = domain.AddAmount(cur, amt)
	} else {
		next, err = domain.SubAmount(cur, amt)
	}
	if err != nil {
		return fmt.Errorf("custody %s: %w", cur.Dec(), err)
	}
	return o.tx.SetCustody(o.ctx, next)
}

// credit adds amt to addr's withdrawable ledger balance.
func (o *op) credit(addr common.Address, amt domain.Amount) error {
	if amt.IsZero() {
		return nil
	}
	cur, err := o.tx.LedgerBalance(o.ctx, addr)
	if err != nil {
		return err
	}
	next, err := domain.AddAmount(cur, amt)
	if err != nil {
		return fmt.Errorf("ledger %s: %w", addr.Hex(), err)
	}
	return o.tx.SetLedgerBalance(o.ctx, addr, next)
}

// moveUnits transfers item units between holders.
func (o *op) moveUnits(item domain.Item, from, to common.Address, amount uint64) error {
	token, err := o.m.tokens.Lookup(item.Contract)
	if err != nil {
		return err
	}
	id := item.TokenID
	o.effects = append(o.effects, effect{
		desc:   fmt.Sprintf("transfer %d of item %d from %s to %s", amount, item.ID, from.Hex(), to.Hex()),
		apply:  func(ctx context.Context) error { return token.SafeTransfer(ctx, from, to, id, amount) },
		revert: func(ctx context.Context) error { return token.SafeTransfer(ctx, to, from, id, amount) },
	})
	return nil
}

// intoCustody moves units from owner to the market custodian.
func (o *op) intoCustody(item domain.Item, owner common.Address, amount uint64) error {
	return o.moveUnits(item, owner, o.m.cfg.Custodian, amount)
}

// outOfCustody releases custodied units to a holder.
func (o *op) outOfCustody(item domain.Item, to common.Address, amount uint64) error {
	return o.moveUnits(item, o.m.cfg.Custodian, to, amount)
}

func (o *op) emit(evt domain.MarketEvent) {
	if evt.Actor == (common.Address{}) {
		evt.Actor = o.caller
	}
	evt.At = o.now
	o.events = append(o.events, evt)
}

// feeFor returns the current fee for a mechanism state.
func (o *op) feeFor(s domain.State) (uint32, error) {
	bps, ok, err := o.tx.MarketFee(o.ctx, s)
	if err != nil {
		return 0, err
	}
	if !ok {
		bps = o.m.cfg.DefaultFees[s]
	}
	return bps, nil
}

// publish fans committed events out to the bus, the audit log and the
// notifier. Failures are logged; the operation has already committed.
func (m *Marketplace) publish(ctx context.Context, events []domain.MarketEvent) {
	for _, evt := range events {
		evt.ID = uuid.NewString()
		attrs := []any{
			slog.String("event_id", evt.ID),
			slog.Uint64("item_id", evt.ItemID),
			slog.Uint64("position_id", evt.PositionID),
			slog.String("actor", evt.Actor.Hex()),
		}
		if evt.Value != "" {
			attrs = append(attrs, slog.String("value", evt.Value))
		}
		m.logger.InfoContext(ctx, "marketplace: "+string(evt.Type), attrs...)

		if m.bus != nil {
			payload, err := json.Marshal(evt)
			if err != nil {
				m.logger.WarnContext(ctx, "marketplace: marshal event failed", slog.String("error", err.Error()))
				continue
			}
			if err := m.bus.Publish(ctx, evt.Channel(), payload); err != nil {
				m.logger.WarnContext(ctx, "marketplace: publish event failed",
					slog.String("event_id", evt.ID),
					slog.String("error", err.Error()),
				)
			}
			if err := m.bus.StreamAppend(ctx, domain.MarketStream, payload); err != nil {
				m.logger.WarnContext(ctx, "marketplace: stream append failed",
					slog.String("event_id", evt.ID),
					slog.String("error", err.Error()),
				)
			}
		}

		if m.audit != nil {
			if err := m.audit.Log(ctx, string(evt.Type), auditDetail(evt)); err != nil {
				m.logger.WarnContext(ctx, "marketplace: audit log failed",
					slog.String("event_id", evt.ID),
					slog.String("error", err.Error()),
				)
			}
		}

		if m.notifier != nil {
			if err := m.notifier.NotifyEvent(ctx, evt); err != nil {
				m.logger.WarnContext(ctx, "marketplace: notify failed",
					slog.String("event_id", evt.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func auditDetail(evt domain.MarketEvent) map[string]any {
	d := map[string]any{
		"event_id": evt.ID,
		"actor":    evt.Actor.Hex(),
		"at":       evt.At.Format(time.RFC3339),
	}
	if evt.ItemID != 0 {
		d["item_id"] = evt.ItemID
	}
	if evt.PositionID != 0 {
		d["position_id"] = evt.PositionID
	}
	if evt.Counterparty != nil {
		d["counterparty"] = evt.Counterparty.Hex()
	}
	if evt.Units != 0 {
		d["units"] = evt.Units
	}
	if evt.Value != "" {
		d["value"] = evt.Value
	}
	if evt.State != "" {
		d["state"] = evt.State
	}
	return d
}

// isNotFound reports whether err is a store miss.
func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
