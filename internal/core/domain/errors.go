package domain

import "errors"

var (
	// ErrDecoding marks a MintRequest log whose topics or data do not match the event shape.
	ErrDecoding = errors.New("malformed mint request event")

	// ErrSubmissionReverted is returned when the contract rejected a mint call.
	ErrSubmissionReverted = errors.New("mint submission reverted")

	// ErrQuantityTooLarge is returned for requests above the configured quantity cap.
	ErrQuantityTooLarge = errors.New("mint quantity exceeds limit")

	// ErrLeaseLost is returned when another instance took over the contract lease.
	ErrLeaseLost = errors.New("consumer lease lost")
)
