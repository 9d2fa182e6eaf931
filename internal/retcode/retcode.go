// Package retcode defines the typed result codes returned by broker-shaped
// engine operations (order_check, order_send, modify_stops) and the typed
// engine-internal failures that never propagate to strategies as exceptions.
package retcode

import "fmt"

// RetCode is returned by broker-shaped operations in place of a raw error,
// mirroring how a live trade terminal reports request outcomes.
type RetCode int

const (
	// DONE indicates the request validated (order_check) or executed
	// (order_send) successfully.
	DONE RetCode = iota

	// Validation errors.
	INVALID
	INVALID_VOLUME
	INVALID_PRICE
	INVALID_STOPS
	INVALID_FILL
	INVALID_EXPIRATION
	INVALID_ORDER
	INVALID_CLOSE_VOLUME

	// Market-state errors.
	MARKET_CLOSED
	PRICE_CHANGED
	PRICE_OFF
	REQUOTE
	TRADE_DISABLED
	LONG_ONLY
	SHORT_ONLY
	CLOSE_ONLY

	// Account errors.
	NO_MONEY
	LIMIT_ORDERS
	LIMIT_VOLUME
	LIMIT_POSITIONS

	// State errors.
	POSITION_CLOSED
	ORDER_CHANGED
	NO_CHANGES
	LOCKED
	FROZEN
)

var retCodeNames = map[RetCode]string{
	DONE:                 "DONE",
	INVALID:              "INVALID",
	INVALID_VOLUME:       "INVALID_VOLUME",
	INVALID_PRICE:        "INVALID_PRICE",
	INVALID_STOPS:        "INVALID_STOPS",
	INVALID_FILL:         "INVALID_FILL",
	INVALID_EXPIRATION:   "INVALID_EXPIRATION",
	INVALID_ORDER:        "INVALID_ORDER",
	INVALID_CLOSE_VOLUME: "INVALID_CLOSE_VOLUME",
	MARKET_CLOSED:        "MARKET_CLOSED",
	PRICE_CHANGED:        "PRICE_CHANGED",
	PRICE_OFF:            "PRICE_OFF",
	REQUOTE:              "REQUOTE",
	TRADE_DISABLED:       "TRADE_DISABLED",
	LONG_ONLY:            "LONG_ONLY",
	SHORT_ONLY:           "SHORT_ONLY",
	CLOSE_ONLY:           "CLOSE_ONLY",
	NO_MONEY:             "NO_MONEY",
	LIMIT_ORDERS:         "LIMIT_ORDERS",
	LIMIT_VOLUME:         "LIMIT_VOLUME",
	LIMIT_POSITIONS:      "LIMIT_POSITIONS",
	POSITION_CLOSED:      "POSITION_CLOSED",
	ORDER_CHANGED:        "ORDER_CHANGED",
	NO_CHANGES:           "NO_CHANGES",
	LOCKED:               "LOCKED",
	FROZEN:               "FROZEN",
}

func (rc RetCode) String() string {
	if n, ok := retCodeNames[rc]; ok {
		return n
	}
	return fmt.Sprintf("RetCode(%d)", int(rc))
}

// OK reports whether rc represents success (DONE).
func (rc RetCode) OK() bool { return rc == DONE }

// EngineCode identifies an internal engine failure — conditions that are
// never the strategy's fault to check for via a retcode, but are still
// expected, recoverable conditions (not programmer errors).
type EngineCode string

const (
	DataMissing             EngineCode = "data-missing"
	RatesMissing            EngineCode = "rates-missing"
	CurrencyCrossUnavailable EngineCode = "currency-cross-unavailable"
	TimeOutOfRange          EngineCode = "time-out-of-range"
	InsufficientBalance     EngineCode = "insufficient-balance"
	DatasetHashMismatch     EngineCode = "dataset-hash-mismatch"
	NoTick                  EngineCode = "no-tick"
)

// EngineError wraps a stable EngineCode plus context, implementing error.
type EngineError struct {
	Code    EngineCode
	Context string
}

func (e *EngineError) Error() string {
	if e.Context == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Context)
}

// NewEngineError builds an EngineError with the given code and context.
func NewEngineError(code EngineCode, context string) *EngineError {
	return &EngineError{Code: code, Context: context}
}

// Is supports errors.Is comparison by EngineCode.
func (e *EngineError) Is(target error) bool {
	other, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return other.Code == e.Code
}
