// Package common defines shared constants, helpers and sentinel errors used
// across the BizKeeper client layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Scope errors.
	ErrorIncorrectScope = errors.New("incorrect scope")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)
