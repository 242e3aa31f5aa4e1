package solana

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRateLimited is matched by every RateLimitError via errors.Is.
var ErrRateLimited = errors.New("rpc rate limited")

// RateLimitError reports a call that was still throttled or timing out after
// the cooldown retry.
type RateLimitError struct {
	Cooldown time.Duration
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited after %s cooldown: %v", e.Cooldown, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// FetchError reports a transaction that could not be retrieved.
type FetchError struct {
	Signature string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch transaction %s: %v", e.Signature, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrTransactionUnavailable is returned (wrapped in a FetchError) when the
// node answers with a null result.
var ErrTransactionUnavailable = errors.New("transaction not available from rpc node")

// isRateLimit reports whether err is the provider's "too many requests" signal.
func isRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	// solana-go surfaces HTTP errors as text; 429 is all we can key on.
	return strings.Contains(err.Error(), "429")
}
