// Package notify forwards selected market events to operator channels such
// as Discord and Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans messages out to every sender. Events outside the allowed
// set are dropped; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends title and message if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "notify: event filtered", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyEvent renders a committed market event and sends it.
func (n *Notifier) NotifyEvent(ctx context.Context, evt domain.MarketEvent) error {
	return n.Notify(ctx, string(evt.Type), eventTitle(evt), eventMessage(evt))
}

// dispatch tries every sender and joins their failures.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func eventTitle(evt domain.MarketEvent) string {
	switch evt.Type {
	case domain.EventSale:
		return fmt.Sprintf("Sale on item #%d", evt.ItemID)
	case domain.EventAuctionEnded:
		return fmt.Sprintf("Auction #%d ended", evt.PositionID)
	case domain.EventRaffleEnded:
		return fmt.Sprintf("Raffle #%d drawn", evt.PositionID)
	case domain.EventLoanLiquidated:
		return fmt.Sprintf("Loan #%d liquidated", evt.PositionID)
	default:
		return strings.ReplaceAll(string(evt.Type), "_", " ")
	}
}

func eventMessage(evt domain.MarketEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "actor: %s", evt.Actor.Hex())
	if evt.Counterparty != nil {
		fmt.Fprintf(&b, "\ncounterparty: %s", evt.Counterparty.Hex())
	}
	if evt.Units > 0 {
		fmt.Fprintf(&b, "\nunits: %d", evt.Units)
	}
	if evt.Value != "" {
		fmt.Fprintf(&b, "\nvalue: %s", evt.Value)
	}
	fmt.Fprintf(&b, "\nat: %s", evt.At.UTC().Format("2006-01-02 15:04:05 MST"))
	return b.String()
}
