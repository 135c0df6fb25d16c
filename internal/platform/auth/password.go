package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is the opaque password-hashing collaborator.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Compare(secret, digest string) bool
}

// BcryptHasher hashes passwords with bcrypt at a fixed cost.
type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

func (h *BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("password required")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

func (h *BcryptHasher) Compare(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

// CredentialVerifier checks a submitted secret against a stored digest.
type CredentialVerifier struct {
	hasher PasswordHasher

	dummyOnce   sync.Once
	dummyDigest string
}

func NewCredentialVerifier(h PasswordHasher) *CredentialVerifier {
	return &CredentialVerifier{hasher: h}
}

// Verify returns ErrInvalidCredentials unless secret matches digest.
func (v *CredentialVerifier) Verify(secret, digest string) error {
	if secret == "" || digest == "" {
		return ErrInvalidCredentials
	}
	if !v.hasher.Compare(secret, digest) {
		return ErrInvalidCredentials
	}
	return nil
}

// Burn performs a comparison against a throwaway digest so that a lookup miss
// costs about as much as a wrong password.
func (v *CredentialVerifier) Burn(secret string) {
	v.dummyOnce.Do(func() {
		v.dummyDigest, _ = v.hasher.Hash("not-a-real-password")
	})
	if v.dummyDigest != "" {
		v.hasher.Compare(secret, v.dummyDigest)
	}
}
