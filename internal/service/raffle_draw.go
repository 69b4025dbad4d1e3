package service

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// drawWinner picks a raffle entrant with probability proportional to their
// contribution. The draw hashes the market seed, the raffle and its entries
// and the settlement time, reduces the digest modulo the total value and
// walks the cumulative contribution ranges. The same inputs always give the
// same winner.
func drawWinner(seed []byte, positionID uint64, r *domain.RaffleData, at time.Time) common.Address {
	var buf [8]byte
	parts := [][]byte{seed}

	binary.BigEndian.PutUint64(buf[:], positionID)
	parts = append(parts, append([]byte(nil), buf[:]...))
	total := r.TotalValue.Bytes32()
	parts = append(parts, total[:])
	binary.BigEndian.PutUint64(buf[:], uint64(r.Deadline.Unix()))
	parts = append(parts, append([]byte(nil), buf[:]...))
	binary.BigEndian.PutUint64(buf[:], uint64(at.UnixNano()))
	parts = append(parts, append([]byte(nil), buf[:]...))
	for _, e := range r.Entries {
		c := e.Contributed.Bytes32()
		parts = append(parts, e.Bidder.Bytes(), c[:])
	}

	digest := crypto.Keccak256(parts...)
	var x uint256.Int
	x.SetBytes(digest)
	x.Mod(&x, &r.TotalValue)
	return pickEntry(r.Entries, &x)
}

// pickEntry returns the bidder whose cumulative range [lo, hi) contains x.
func pickEntry(entries []domain.RaffleEntry, x *uint256.Int) common.Address {
	var hi uint256.Int
	for _, e := range entries {
		hi.Add(&hi, &e.Contributed)
		if x.Lt(&hi) {
			return e.Bidder
		}
	}
	return entries[len(entries)-1].Bidder
}
