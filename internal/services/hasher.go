package services

import (
	"crypto/rand"
	"errors"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
	// CompareDummy burns the same time as Compare, for unknown users.
	CompareDummy(password string)
}

type bcryptHasher struct {
	cost  int
	dummy []byte
}

func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	seed := make([]byte, 16)
	_, _ = rand.Read(seed)
	dummy, err := bcrypt.GenerateFromPassword(seed, cost)
	if err != nil {
		dummy = nil
	}
	return &bcryptHasher{cost: cost, dummy: dummy}
}

func (h *bcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", oops.Code("PASSWORD_TOO_LONG").Public("Password is too long").Wrap(ErrValidation)
		}
		return "", oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	return string(b), nil
}

func (h *bcryptHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (h *bcryptHasher) CompareDummy(password string) {
	if h.dummy != nil {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
	}
}
