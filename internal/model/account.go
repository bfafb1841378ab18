package model

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is the stored identity record. Email is the identity key.
// PasswordHash is empty for federation-only accounts and FederatedID is
// empty for password-only accounts; at least one of them is always set.
type Account struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	FederatedID   string    `json:"google_id,omitempty"`
	Name          string    `json:"name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Location      string    `json:"location,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	Picture       string    `json:"picture,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (a Account) HasPassword() bool {
	return a.PasswordHash != ""
}

func (a Account) HasAuthPath() bool {
	return a.PasswordHash != "" || a.FederatedID != ""
}

// AccountPatch carries a partial update. Nil fields are left untouched.
type AccountPatch struct {
	Email         *string
	PasswordHash  *string
	Role          *string
	FederatedID   *string
	Name          *string
	Phone         *string
	Location      *string
	Bio           *string
	Picture       *string
	EmailVerified *bool
}

func (p AccountPatch) IsEmpty() bool {
	return p.Email == nil && p.PasswordHash == nil && p.Role == nil && p.FederatedID == nil &&
		p.Name == nil && p.Phone == nil && p.Location == nil && p.Bio == nil &&
		p.Picture == nil && p.EmailVerified == nil
}

// Apply writes the non-nil patch fields onto a copy of the account.
func (p AccountPatch) Apply(a Account) Account {
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.Role != nil {
		a.Role = *p.Role
	}
	if p.FederatedID != nil {
		a.FederatedID = *p.FederatedID
	}
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Phone != nil {
		a.Phone = *p.Phone
	}
	if p.Location != nil {
		a.Location = *p.Location
	}
	if p.Bio != nil {
		a.Bio = *p.Bio
	}
	if p.Picture != nil {
		a.Picture = *p.Picture
	}
	if p.EmailVerified != nil {
		a.EmailVerified = *p.EmailVerified
	}
	return a
}

// Identity is what a verified session token asserts.
type Identity struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Assertion is a verified statement from the federated identity provider.
type Assertion struct {
	Subject       string
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// Session is a freshly minted token plus the account it was issued for.
type Session struct {
	Token   string
	Account Account
}

// SessionCookieName is the only transport for session tokens.
const SessionCookieName = "session"
