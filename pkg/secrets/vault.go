// Package secrets generates the per-order secrets that unlock escrowed funds
// and keeps them until they are disclosed.
package secrets

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SecretSize is the length of every secret in bytes
const SecretSize = 32

// Secret is a random preimage and its keccak-256 hash. String and the fmt
// verbs only ever print the hash.
type Secret struct {
	value [SecretSize]byte
	Hash  common.Hash
}

// Reveal returns the 0x-prefixed secret. It is the only way to read the
// preimage and is meant for the disclosure call.
func (s Secret) Reveal() string {
	return hexutil.Encode(s.value[:])
}

func (s Secret) String() string {
	return "secret(" + s.Hash.Hex() + ")"
}

// GoString keeps %#v from printing the preimage
func (s Secret) GoString() string {
	return s.String()
}

// Set is the ordered list of secrets for one order attempt
type Set []Secret

// Hashes returns the hash of every secret, in order
func (s Set) Hashes() []common.Hash {
	out := make([]common.Hash, len(s))
	for i, sec := range s {
		out[i] = sec.Hash
	}
	return out
}

// Verify checks that every hash matches its preimage
func (s Set) Verify() error {
	for i, sec := range s {
		if Hash(sec.value[:]) != sec.Hash {
			return fmt.Errorf("secret %d: hash does not match preimage", i)
		}
	}
	return nil
}

// Hash is the hash function the escrow contracts verify secrets against
func Hash(secret []byte) common.Hash {
	return crypto.Keccak256Hash(secret)
}

// Vault generates secret sets. A Vault holds no per-order state, each order
// keeps its own Set.
type Vault struct {
	rand io.Reader
}

// NewVault creates a vault backed by crypto/rand
func NewVault() *Vault {
	return &Vault{rand: rand.Reader}
}

// NewVaultWithReader creates a vault reading randomness from r
func NewVaultWithReader(r io.Reader) *Vault {
	return &Vault{rand: r}
}

// Generate returns n independent secrets
func (v *Vault) Generate(n int) (Set, error) {
	if n < 1 {
		return nil, fmt.Errorf("secret count must be at least 1, got %d", n)
	}

	set := make(Set, 0, n)
	for i := 0; i < n; i++ {
		var sec Secret
		if _, err := io.ReadFull(v.rand, sec.value[:]); err != nil {
			return nil, fmt.Errorf("read random secret: %w", err)
		}
		for _, prev := range set {
			if bytes.Equal(prev.value[:], sec.value[:]) {
				return nil, fmt.Errorf("random source produced a duplicate secret")
			}
		}
		sec.Hash = Hash(sec.value[:])
		set = append(set, sec)
	}

	return set, nil
}
