package models

import "time"

// Identity is a credential record held by the identity store.
// ConfirmedAt is nil until the address is confirmed; unconfirmed identities
// cannot sign in.
type Identity struct {
	ID           string
	Email        string
	PasswordHash []byte
	Salt         []byte
	ConfirmedAt  *time.Time
	CreatedAt    time.Time
}

type RefreshToken struct {
	ID         string
	IdentityID string
	Token      string
	Expires    time.Time
	CreatedAt  time.Time
}
