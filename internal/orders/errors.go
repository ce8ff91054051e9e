package orders

import "errors"

// Sentinel errors for domain-level error handling.
// The httpx layer maps these to HTTP status codes.
var (
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrProductNotFound   = errors.New("product_not_found")
	ErrProfileNotFound   = errors.New("profile_not_found")
	ErrInvalidState      = errors.New("invalid_order_state")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrProductInUse      = errors.New("product_in_use")
	ErrMintExhausted     = errors.New("mint_attempts_exhausted")
	ErrInvalidQty        = errors.New("invalid_qty")
)
