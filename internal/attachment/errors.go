package attachment

import "errors"

var (
	// ErrNoSource indicates the reference carries neither an identifier nor
	// a URL, so no retrieval strategy applies.
	ErrNoSource = errors.New("attachment has no retrievable source")
	// ErrExhausted indicates every applicable retrieval strategy failed.
	ErrExhausted = errors.New("all attachment retrieval strategies failed")
)
