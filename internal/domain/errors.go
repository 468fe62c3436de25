package domain

import "errors"

var (
	// ErrAuth means the credentials were rejected while acquiring a token.
	ErrAuth = errors.New("authentication failed")
	// ErrTokenExpired means a held token was rejected by the data endpoint.
	ErrTokenExpired = errors.New("token expired")
	// ErrConnection is a transport level failure.
	ErrConnection = errors.New("failed to connect")
	// ErrAPI is a non-200 status or an unsuccessful response body.
	ErrAPI = errors.New("api error")
)
