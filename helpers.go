package lmsauth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches the usual BCRYPT_SALT_ROUNDS default.
const DefaultBcryptCost = 10

// PasswordHasher turns plaintext passwords into salted one-way hashes and
// checks candidates against them.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	// Verify never fails loudly: malformed or empty hashes simply don't match.
	Verify(plain, hash string) bool
	// VerifyAbsent spends the same work as Verify when there is no hash to
	// compare against, so unknown accounts cannot be told apart by timing.
	VerifyAbsent(plain string)
}

// BcryptHasher hashes with bcrypt at a fixed cost.
type BcryptHasher struct {
	Cost int

	dummyOnce sync.Once
	dummy     []byte
}

func NewBcryptHasher(cost int) *BcryptHasher {
	return (&BcryptHasher{Cost: cost}).EnsureDefaults()
}

func (h *BcryptHasher) EnsureDefaults() *BcryptHasher {
	if h.Cost == 0 {
		h.Cost = DefaultBcryptCost
	}
	if h.Cost < bcrypt.MinCost {
		h.Cost = bcrypt.MinCost
	}
	if h.Cost > bcrypt.MaxCost {
		h.Cost = bcrypt.MaxCost
	}
	return h
}

func (h *BcryptHasher) Hash(plain string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plain), h.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(out), nil
}

func (h *BcryptHasher) Verify(plain, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func (h *BcryptHasher) VerifyAbsent(plain string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("lmsauth-dummy-password"), h.Cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}
