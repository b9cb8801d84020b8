package ledger

import "errors"

var (
	ErrBlockNotFound = errors.New("block not found")

	ErrInvalidRange = errors.New("invalid block range")

	// ErrInvalidBlock is returned by AddBlock for a block that does not extend the head.
	ErrInvalidBlock = errors.New("invalid block")
)
