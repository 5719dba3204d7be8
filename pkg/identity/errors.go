package identity

import "errors"

var (
	ErrMissingToken      = errors.New("identity: missing bearer token")
	ErrInvalidToken      = errors.New("identity: invalid token")
	ErrExpiredToken      = errors.New("identity: token is expired")
	ErrInvalidSubject    = errors.New("identity: subject is not a user id")
	ErrMissingSigningKey = errors.New("identity: missing signing key")
	ErrNoIdentity        = errors.New("identity: no identity in context")
)
