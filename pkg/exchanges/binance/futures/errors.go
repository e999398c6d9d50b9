package futures

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Venue error codes the executor branches on.
const (
	// Stop order would trigger immediately at the current price.
	CodeWouldTrigger = -2021
	// ReduceOnly order rejected: nothing left to reduce.
	CodeReduceOnlyRejected = -2022
	// An order of this type already rests for the position.
	CodeOrderTypeConflict = -4130
	// The position no longer exists.
	CodePositionGone = -4509
)

// APIError is a structured venue rejection.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance futures: %s (code %d)", e.Message, e.Code)
}

// IsCode reports whether err is a venue rejection with the given code.
func IsCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// parseAPIError decodes an error body; nil when it is not the venue's
// {code, msg} shape.
func parseAPIError(body []byte) *APIError {
	var e APIError
	if err := json.Unmarshal(body, &e); err != nil || e.Code == 0 {
		return nil
	}
	return &e
}
