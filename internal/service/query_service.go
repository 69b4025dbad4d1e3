package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// Page is one page of a paginated query. Pages are numbered from 1.
type Page[T any] struct {
	Records    []T
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// pageWindow validates the page request against total and returns the
// record offset.
func pageWindow(page, size, total int) (offset, totalPages int, err error) {
	if page < 1 || size < 1 {
		return 0, 0, fmt.Errorf("page %d size %d: %w", page, size, domain.ErrInvalidPage)
	}
	totalPages = (total + size - 1) / size
	if page > totalPages {
		return 0, totalPages, fmt.Errorf("page %d of %d: %w", page, totalPages, domain.ErrInvalidPage)
	}
	return (page - 1) * size, totalPages, nil
}

// FetchItem returns an item with its live position ids and sales history.
func (m *Marketplace) FetchItem(ctx context.Context, id uint64) (domain.Item, error) {
	var it domain.Item
	err := m.view(ctx, "fetch item", func(tx domain.MarketTx) error {
		var err error
		it, err = tx.GetItem(ctx, id)
		return err
	})
	return it, err
}

// FetchItemByToken resolves an item by its token identity.
func (m *Marketplace) FetchItemByToken(ctx context.Context, contract common.Address, tokenID domain.TokenID) (domain.Item, error) {
	var it domain.Item
	err := m.view(ctx, "fetch item by token", func(tx domain.MarketTx) error {
		var err error
		it, err = tx.FindItem(ctx, domain.ItemKey{Contract: contract, TokenID: tokenID})
		return err
	})
	return it, err
}

// FetchPosition returns a position in any state, closed included.
func (m *Marketplace) FetchPosition(ctx context.Context, id uint64) (domain.Position, error) {
	var p domain.Position
	err := m.view(ctx, "fetch position", func(tx domain.MarketTx) error {
		var err error
		p, err = tx.GetPosition(ctx, id)
		return err
	})
	return p, err
}

// FetchItemsPage returns one page of items matching f, ordered by id.
func (m *Marketplace) FetchItemsPage(ctx context.Context, f domain.ItemFilter, page, size int) (Page[domain.Item], error) {
	out := Page[domain.Item]{Page: page, PageSize: size}
	err := m.view(ctx, "fetch items page", func(tx domain.MarketTx) error {
		_, total, err := tx.ListItems(ctx, f, 0, 1)
		if err != nil {
			return err
		}
		offset, pages, err := pageWindow(page, size, total)
		out.Total, out.TotalPages = total, pages
		if err != nil {
			return err
		}
		out.Records, _, err = tx.ListItems(ctx, f, offset, size)
		return err
	})
	return out, err
}

// FetchPositionsPage returns one page of live positions matching f, ordered
// by id. The bidder, entrant and lender filters select a participant's
// auctions, raffles and loans.
func (m *Marketplace) FetchPositionsPage(ctx context.Context, f domain.PositionFilter, page, size int) (Page[domain.Position], error) {
	out := Page[domain.Position]{Page: page, PageSize: size}
	err := m.view(ctx, "fetch positions page", func(tx domain.MarketTx) error {
		_, total, err := tx.ListPositions(ctx, f, 0, 1)
		if err != nil {
			return err
		}
		offset, pages, err := pageWindow(page, size, total)
		out.Total, out.TotalPages = total, pages
		if err != nil {
			return err
		}
		out.Records, _, err = tx.ListPositions(ctx, f, offset, size)
		return err
	})
	return out, err
}

// FetchMetadata returns display metadata for an item's token, served from
// the metadata cache when one is configured.
func (m *Marketplace) FetchMetadata(ctx context.Context, itemID uint64) (domain.TokenMetadata, error) {
	it, err := m.FetchItem(ctx, itemID)
	if err != nil {
		return domain.TokenMetadata{}, err
	}
	key := it.Key()
	if m.cache != nil {
		md, err := m.cache.Get(ctx, key)
		if err == nil {
			return md, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			m.logger.WarnContext(ctx, "marketplace: metadata cache read failed",
				slog.Uint64("item_id", itemID),
				slog.String("error", err.Error()),
			)
		}
	}

	token, err := m.tokens.Lookup(it.Contract)
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("service: fetch metadata: %w", err)
	}
	uri, err := token.URI(ctx, it.TokenID)
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("service: fetch metadata: uri: %w", err)
	}
	supply, err := token.TotalSupplyOf(ctx, it.TokenID)
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("service: fetch metadata: supply: %w", err)
	}
	md := domain.TokenMetadata{
		Contract:    it.Contract.Hex(),
		TokenID:     it.TokenID.Dec(),
		URI:         uri,
		TotalSupply: supply,
	}
	if m.cache != nil {
		if err := m.cache.Set(ctx, key, md); err != nil {
			m.logger.WarnContext(ctx, "marketplace: metadata cache write failed",
				slog.Uint64("item_id", itemID),
				slog.String("error", err.Error()),
			)
		}
	}
	return md, nil
}
