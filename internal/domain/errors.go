package domain

import "errors"

var (
	// ErrNoAcquisition is returned when the wallet never received the token
	// on-chain
	ErrNoAcquisition = errors.New("no on-chain acquisition found")

	// ErrInvalidAddress is returned when a wallet address cannot be parsed
	ErrInvalidAddress = errors.New("invalid wallet address")

	// ErrInvalidTokenKey is returned when a token key is malformed
	ErrInvalidTokenKey = errors.New("invalid token key")

	// ErrRefreshCancelled is returned when a background refresh is discarded
	// because its session was cancelled
	ErrRefreshCancelled = errors.New("refresh cancelled")
)
