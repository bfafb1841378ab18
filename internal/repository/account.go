package repository

import "errors"

// ErrNoAuthPath rejects accounts created without a password hash or a
// federated identity.
var ErrNoAuthPath = errors.New("account needs a password or a federated identity")
