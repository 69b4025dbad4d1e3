package devchain

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

var (
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
)

func TestTokenMintAndTransfer(t *testing.T) {
	ctx := context.Background()
	tok := NewToken(common.HexToAddress("0x1"))

	id, err := tok.Mint(ctx, alice, domain.MintRequest{Amount: 10, URI: "ipfs://x", RoyaltyRecipient: alice, RoyaltyBps: 500})
	require.NoError(t, err)

	bal, err := tok.BalanceOf(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), bal)

	require.NoError(t, tok.SafeTransfer(ctx, alice, bob, id, 4))
	bal, _ = tok.BalanceOf(ctx, bob, id)
	assert.Equal(t, uint64(4), bal)

	err = tok.SafeTransfer(ctx, bob, alice, id, 5)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	tok.Reject(alice, true)
	err = tok.SafeTransfer(ctx, bob, alice, id, 1)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	supply, err := tok.TotalSupplyOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), supply)

	uri, err := tok.URI(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://x", uri)
}

func TestTokenRoyalty(t *testing.T) {
	ctx := context.Background()
	tok := NewToken(common.HexToAddress("0x1"))
	id, err := tok.Mint(ctx, alice, domain.MintRequest{Amount: 1, RoyaltyRecipient: bob, RoyaltyBps: 1000})
	require.NoError(t, err)

	recv, royalty, err := tok.RoyaltyInfo(ctx, id, domain.NewAmount(250))
	require.NoError(t, err)
	assert.Equal(t, bob, recv)
	assert.Equal(t, uint64(25), royalty.Uint64())

	_, royalty, err = tok.RoyaltyInfo(ctx, domain.NewTokenID(99), domain.NewAmount(250))
	require.NoError(t, err)
	assert.True(t, royalty.IsZero())
}

func TestTokenMimeTypes(t *testing.T) {
	ctx := context.Background()
	tok := NewToken(common.HexToAddress("0x1"))
	require.NoError(t, tok.SetValidMimeType(ctx, "image/png", true))

	_, err := tok.Mint(ctx, alice, domain.MintRequest{Amount: 1, MimeType: "video/mp4"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.ErrorIs(t, tok.CheckMint(ctx, domain.MintRequest{Amount: 1, MimeType: "video/mp4"}), domain.ErrInvalidAmount)
	assert.NoError(t, tok.CheckMint(ctx, domain.MintRequest{Amount: 1, MimeType: "image/png"}))
	assert.ErrorIs(t, tok.CheckMint(ctx, domain.MintRequest{MimeType: "image/png"}), domain.ErrInvalidAmount)
	_, err = tok.Mint(ctx, alice, domain.MintRequest{Amount: 1, MimeType: "image/png"})
	assert.NoError(t, err)
}

func TestBankCustody(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Fund(alice, domain.NewAmount(100)))

	err := b.Receive(ctx, alice, domain.NewAmount(101))
	assert.ErrorIs(t, err, domain.ErrInsufficientPay)

	require.NoError(t, b.Receive(ctx, alice, domain.NewAmount(60)))
	custody := b.Custody()
	assert.Equal(t, uint64(60), custody.Uint64())

	require.NoError(t, b.Pay(ctx, bob, domain.NewAmount(20)))
	bobBal := b.BalanceOf(bob)
	assert.Equal(t, uint64(20), bobBal.Uint64())

	b.FailFor(bob, true)
	assert.ErrorIs(t, b.Pay(ctx, bob, domain.NewAmount(1)), domain.ErrTransferFailed)
	assert.ErrorIs(t, b.Pay(ctx, alice, domain.NewAmount(41)), domain.ErrTransferFailed)
}

func TestDirectory(t *testing.T) {
	def := NewToken(common.HexToAddress("0x1"))
	other := NewToken(common.HexToAddress("0x2"))
	d := NewDirectory(def, other)

	got, err := d.Lookup(other.Address())
	require.NoError(t, err)
	assert.Equal(t, other.Address(), got.Address())

	_, err = d.Lookup(common.HexToAddress("0x3"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, def.Address(), d.Default().Address())
}
