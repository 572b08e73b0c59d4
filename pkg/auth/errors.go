package auth

import "errors"

var (
	ErrMissingSigningKey = errors.New("auth: missing signing key")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrInvalidSignature  = errors.New("auth: invalid signature")
	ErrExpiredToken      = errors.New("auth: token is expired")
	ErrMissingSubject    = errors.New("auth: token has no subject")
)
