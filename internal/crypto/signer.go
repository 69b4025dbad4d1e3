package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	domainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	requestTypeHash = ethcrypto.Keccak256(
		[]byte("Request(string method,string path,bytes32 bodyHash,uint256 timestamp)"),
	)
)

// ErrBadSignature is returned when a signature is malformed or does not
// recover to a public key.
var ErrBadSignature = errors.New("crypto: bad signature")

// Domain is the EIP-712 domain API requests are signed under.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// Separator returns the domain separator hash.
func (d Domain) Separator() []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			domainTypeHash,
			ethcrypto.Keccak256([]byte(d.Name)),
			ethcrypto.Keccak256([]byte(d.Version)),
			uintWord(big.NewInt(d.ChainID)),
			common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
		),
	)
}

// RequestDigest is the EIP-712 digest of one API request. The body enters as
// its keccak256 hash; an empty body hashes the empty string.
func (d Domain) RequestDigest(method, path string, body []byte, ts time.Time) []byte {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			requestTypeHash,
			ethcrypto.Keccak256([]byte(strings.ToUpper(method))),
			ethcrypto.Keccak256([]byte(path)),
			ethcrypto.Keccak256(body),
			uintWord(big.NewInt(ts.Unix())),
		),
	)
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, d.Separator(), structHash))
}

// RecoverRequest returns the address that signed the request.
func (d Domain) RecoverRequest(method, path string, body []byte, ts time.Time, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		return common.Address{}, ErrBadSignature
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(d.RequestDigest(method, path, body, ts), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Signer signs API requests with one secp256k1 key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	domain  Domain
}

// NewSigner parses a hex private key, with or without 0x.
func NewSigner(privateKeyHex string, domain Domain) (*Signer, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Signer{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey), domain: domain}, nil
}

func (s *Signer) Address() common.Address { return s.address }

// SignRequest returns a 0x-prefixed 65-byte signature with v in {27, 28}.
func (s *Signer) SignRequest(method, path string, body []byte, ts time.Time) (string, error) {
	sig, err := ethcrypto.Sign(s.domain.RequestDigest(method, path, body, ts), s.key)
	if err != nil {
		return "", fmt.Errorf("crypto: sign request: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// uintWord left-pads n into one 32-byte ABI word.
func uintWord(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

func concatBytes(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
