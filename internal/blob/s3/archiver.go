package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	snapshotBatch    = 500
	snapshotLayout   = "20060102T150405Z"
)

// BlobLister lists and deletes archived objects, as Reader does.
type BlobLister interface {
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
	Delete(ctx context.Context, path string) error
}

type saleRecord struct {
	Seller common.Address `json:"seller"`
	Buyer  common.Address `json:"buyer"`
	Amount uint64         `json:"amount"`
	Price  string         `json:"price"`
}

type itemRecord struct {
	ID          uint64         `json:"id"`
	Contract    common.Address `json:"contract"`
	TokenID     string         `json:"token_id"`
	Creator     common.Address `json:"creator"`
	PositionIDs []uint64       `json:"position_ids"`
	Sales       []saleRecord   `json:"sales"`
}

type positionRecord struct {
	ID           uint64               `json:"id"`
	ItemID       uint64               `json:"item_id"`
	Owner        common.Address       `json:"owner"`
	Amount       uint64               `json:"amount"`
	MarketFeeBps uint32               `json:"market_fee_bps"`
	State        string               `json:"state"`
	Data         domain.StateDataJSON `json:"data"`
}

// Archiver exports a consistent snapshot of the market registry as two JSONL
// objects under {prefix}/{timestamp}/.
type Archiver struct {
	store    domain.MarketStore
	writer   domain.BlobWriter
	audit    domain.AuditStore
	prefix   string
	partSize int64
}

// NewArchiver creates an Archiver. Snapshots larger than partSize are sent
// as multipart uploads; audit may be nil.
func NewArchiver(store domain.MarketStore, writer domain.BlobWriter, audit domain.AuditStore, prefix string, partSize int64) *Archiver {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "archive/snapshots"
	}
	return &Archiver{store: store, writer: writer, audit: audit, prefix: prefix, partSize: max(partSize, MinPartSize)}
}

// ArchiveSnapshot writes every item (with its sales history) and every live
// position as of one read transaction.
func (a *Archiver) ArchiveSnapshot(ctx context.Context, at time.Time) (domain.SnapshotResult, error) {
	var items, positions bytes.Buffer
	res := domain.SnapshotResult{}

	err := a.store.View(ctx, func(tx domain.MarketTx) error {
		itemEnc := newJSONLEncoder(&items)
		for offset := 0; ; offset += snapshotBatch {
			batch, _, err := tx.ListItems(ctx, domain.ItemFilter{}, offset, snapshotBatch)
			if err != nil {
				return err
			}
			for i := range batch {
				if err := itemEnc.Encode(toItemRecord(batch[i])); err != nil {
					return err
				}
				res.Items++
				res.Sales += int64(len(batch[i].Sales))
			}
			if len(batch) < snapshotBatch {
				break
			}
		}

		posEnc := newJSONLEncoder(&positions)
		for offset := 0; ; offset += snapshotBatch {
			batch, _, err := tx.ListPositions(ctx, domain.PositionFilter{}, offset, snapshotBatch)
			if err != nil {
				return err
			}
			for _, p := range batch {
				if err := posEnc.Encode(toPositionRecord(p)); err != nil {
					return err
				}
				res.Positions++
			}
			if len(batch) < snapshotBatch {
				break
			}
		}
		return nil
	})
	if err != nil {
		return domain.SnapshotResult{}, fmt.Errorf("s3blob: snapshot read: %w", err)
	}

	dir := a.prefix + "/" + at.UTC().Format(snapshotLayout)
	res.ItemsPath = dir + "/items.jsonl"
	res.PositionsPath = dir + "/positions.jsonl"

	if err := a.upload(ctx, res.ItemsPath, &items); err != nil {
		return domain.SnapshotResult{}, err
	}
	if err := a.upload(ctx, res.PositionsPath, &positions); err != nil {
		return domain.SnapshotResult{}, err
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.snapshot", map[string]any{
			"items_path":     res.ItemsPath,
			"positions_path": res.PositionsPath,
			"items":          res.Items,
			"positions":      res.Positions,
			"sales":          res.Sales,
		}); err != nil {
			return res, fmt.Errorf("s3blob: snapshot audit: %w", err)
		}
	}
	return res, nil
}

// Prune deletes all but the newest keep snapshots under the prefix and
// returns how many snapshot directories it removed.
func (a *Archiver) Prune(ctx context.Context, blobs BlobLister, keep int) (int, error) {
	if keep < 1 {
		return 0, fmt.Errorf("s3blob: prune keeps at least one snapshot, got %d", keep)
	}
	infos, err := blobs.List(ctx, a.prefix+"/")
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune list: %w", err)
	}

	byDir := map[string][]string{}
	for _, info := range infos {
		rest := strings.TrimPrefix(info.Path, a.prefix+"/")
		dir, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		byDir[dir] = append(byDir[dir], info.Path)
	}
	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	// Timestamps sort lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	if len(dirs) <= keep {
		return 0, nil
	}

	removed := 0
	for _, dir := range dirs[keep:] {
		for _, path := range byDir[dir] {
			if err := blobs.Delete(ctx, path); err != nil {
				return removed, fmt.Errorf("s3blob: prune: %w", err)
			}
		}
		removed++
	}
	return removed, nil
}

func (a *Archiver) upload(ctx context.Context, path string, buf *bytes.Buffer) error {
	var err error
	if int64(buf.Len()) > a.partSize {
		err = a.writer.PutMultipart(ctx, path, buf, a.partSize)
	} else {
		err = a.writer.Put(ctx, path, buf, jsonlContentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: snapshot upload: %w", err)
	}
	return nil
}

func newJSONLEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

func toItemRecord(it domain.Item) itemRecord {
	rec := itemRecord{
		ID:          it.ID,
		Contract:    it.Contract,
		TokenID:     it.TokenID.Dec(),
		Creator:     it.Creator,
		PositionIDs: it.PositionIDs,
		Sales:       make([]saleRecord, 0, len(it.Sales)),
	}
	for _, s := range it.Sales {
		rec.Sales = append(rec.Sales, saleRecord{Seller: s.Seller, Buyer: s.Buyer, Amount: s.Amount, Price: s.Price.Dec()})
	}
	return rec
}

func toPositionRecord(p domain.Position) positionRecord {
	return positionRecord{
		ID:           p.ID,
		ItemID:       p.ItemID,
		Owner:        p.Owner,
		Amount:       p.Amount,
		MarketFeeBps: p.MarketFeeBps,
		State:        p.State.String(),
		Data:         domain.EncodeStateData(p.Data()),
	}
}

var _ domain.Archiver = (*Archiver)(nil)
