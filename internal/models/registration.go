package models

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"pwanotify/internal/authz"
	"pwanotify/internal/common"
)

var (
	validate  = validator.New()
	phoneExpr = regexp.MustCompile(`^\+?[0-9]{8,19}$`)
)

// Registration is either an AdminRegistration or a ClientRegistration.
type Registration interface {
	Role() authz.Role
	Validate() error
	Password() string
	registration()
}

type AdminRegistration struct {
	Username string `validate:"required,max=50"`
	Email    string `validate:"required,email"`
	Secret   string `validate:"required,max=72"`
}

type ClientRegistration struct {
	WhatsAppNumber string `validate:"required"`
	Secret         string `validate:"required,max=72"`
}

func (AdminRegistration) Role() authz.Role  { return authz.RoleAdmin }
func (ClientRegistration) Role() authz.Role { return authz.RoleClient }

func (r AdminRegistration) Password() string  { return r.Secret }
func (r ClientRegistration) Password() string { return r.Secret }

func (AdminRegistration) registration()  {}
func (ClientRegistration) registration() {}

func (r AdminRegistration) Validate() error {
	if strings.TrimSpace(r.Username) == "" || strings.TrimSpace(r.Email) == "" || r.Secret == "" {
		return invalid("Username, email, and password are required for admin", nil)
	}
	// логин по username не должен распознаваться как телефон или email
	if strings.Contains(r.Username, "@") || phoneExpr.MatchString(NormalizePhone(r.Username)) {
		return invalid("Username cannot be a phone number or an email", nil)
	}
	if err := validate.Struct(r); err != nil {
		return invalid("Invalid admin registration data", err)
	}
	return nil
}

func (r ClientRegistration) Validate() error {
	if strings.TrimSpace(r.WhatsAppNumber) == "" || r.Secret == "" {
		return invalid("WhatsApp number and password are required for client", nil)
	}
	if err := validate.Struct(r); err != nil {
		return invalid("Invalid client registration data", err)
	}
	if !phoneExpr.MatchString(r.WhatsAppNumber) {
		return invalid("Invalid WhatsApp number", nil)
	}
	return nil
}

// RegistrationInput is the loose wire form of a registration request.
type RegistrationInput struct {
	Role           string
	Handle         string
	WhatsAppNumber string
	Username       string
	Email          string
	Password       string
}

// Normalize turns the wire form into a validated variant.
func (in RegistrationInput) Normalize() (Registration, error) {
	role, ok := authz.ParseRole(in.Role)
	if !ok {
		return nil, oops.Code("REGISTER_INVALID_ROLE").
			With("role", in.Role).
			Public("Invalid role").
			Wrap(common.ErrValidation)
	}

	var reg Registration
	switch role {
	case authz.RoleAdmin:
		reg = AdminRegistration{
			Username: strings.TrimSpace(in.Username),
			Email:    NormalizeEmail(in.Email),
			Secret:   in.Password,
		}
	case authz.RoleClient:
		phone := in.WhatsAppNumber
		if phone == "" {
			phone = in.Handle
		}
		reg = ClientRegistration{
			WhatsAppNumber: NormalizePhone(phone),
			Secret:         in.Password,
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func invalid(public string, cause error) error {
	b := oops.Code("VALIDATION_FAILED").Public(public)
	if cause != nil {
		b = b.With("cause", cause.Error())
	}
	return b.Wrap(common.ErrValidation)
}

// NormalizePhone strips separators people tend to type and the leading "+",
// so one WhatsApp number has exactly one stored form.
func NormalizePhone(s string) string {
	r := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	return strings.TrimPrefix(r.Replace(strings.TrimSpace(s)), "+")
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IdentifierKind says which user column a login identifier refers to.
type IdentifierKind int

const (
	IdentifierUsername IdentifierKind = iota
	IdentifierEmail
	IdentifierPhone
)

type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// ParseIdentifier infers the identifier kind: an "@" means email, digits
// with an optional leading "+" mean WhatsApp number, anything else is a
// username. Usernames are never digit-only or contain "@", see
// AdminRegistration.Validate.
func ParseIdentifier(s string) Identifier {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "@") {
		return Identifier{Kind: IdentifierEmail, Value: NormalizeEmail(s)}
	}
	if phone := NormalizePhone(s); phoneExpr.MatchString(phone) {
		return Identifier{Kind: IdentifierPhone, Value: phone}
	}
	return Identifier{Kind: IdentifierUsername, Value: s}
}
