package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"order-matcher/internal/engine"

	"github.com/shopspring/decimal"
)

// maxIntegerDigits bounds prices and quantities below 1e18
const maxIntegerDigits = 18

// FieldError describes one rejected request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every problem found in a request body
type ValidationError struct {
	Details []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Details))
	for i, d := range e.Details {
		parts[i] = d.Field + ": " + d.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Details = append(e.Details, FieldError{Field: field, Message: message})
}

// PlaceOrderRequest is the body of POST /place. Numeric fields accept a JSON number
// or a numeric string.
type PlaceOrderRequest struct {
	Side     json.RawMessage `json:"side"`
	Price    json.RawMessage `json:"price"`
	Quantity json.RawMessage `json:"quantity"`
	UserID   json.RawMessage `json:"userId"`
}

// Validator turns request bodies into engine requests
type Validator struct {
	PriceScale    int32
	QuantityScale int32
}

// Parse decodes and validates an order body. Failures are returned as *ValidationError,
// except a body cut off by http.MaxBytesReader, which is returned wrapped.
func (v Validator) Parse(body io.Reader) (engine.NewOrderRequest, error) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return engine.NewOrderRequest{}, fmt.Errorf("request body: %w", err)
		}
		verr := &ValidationError{}
		verr.add("body", "Invalid JSON: "+err.Error())
		return engine.NewOrderRequest{}, verr
	}

	verr := &ValidationError{}
	out := engine.NewOrderRequest{
		Side:     parseSide(req.Side, verr),
		Price:    parseAmount("price", req.Price, v.PriceScale, verr),
		Quantity: parseAmount("quantity", req.Quantity, v.QuantityScale, verr),
		UserID:   parseUserID(req.UserID, verr),
	}
	if len(verr.Details) > 0 {
		return engine.NewOrderRequest{}, verr
	}
	return out, nil
}

func missing(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func parseSide(raw json.RawMessage, verr *ValidationError) engine.Side {
	if missing(raw) {
		verr.add("side", "Required")
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || !engine.Side(s).Valid() {
		verr.add("side", "Invalid enum value. Expected 'BUY' | 'SELL'")
		return ""
	}
	return engine.Side(s)
}

// parseAmount rounds half-up to scale fractional digits; the rounded value must be positive.
// Magnitude is checked on the unrounded value, so huge exponents are never expanded.
func parseAmount(field string, raw json.RawMessage, scale int32, verr *ValidationError) decimal.Decimal {
	if missing(raw) {
		verr.add(field, "Required")
		return decimal.Zero
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			verr.add(field, "Expected number")
			return decimal.Zero
		}
		text = strings.TrimSpace(text)
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		verr.add(field, "Expected number")
		return decimal.Zero
	}

	if d.Sign() <= 0 {
		verr.add(field, fmt.Sprintf("Number must be greater than 0 at %d decimal places", scale))
		return decimal.Zero
	}

	// digits before the decimal point; negative for values below 0.1
	intDigits := int64(d.NumDigits()) + int64(d.Exponent())
	if intDigits > maxIntegerDigits {
		verr.add(field, fmt.Sprintf("Number must be less than 1e%d", maxIntegerDigits))
		return decimal.Zero
	}
	if intDigits < -int64(scale) {
		// below 10^-(scale+1), rounds to zero
		verr.add(field, fmt.Sprintf("Number must be greater than 0 at %d decimal places", scale))
		return decimal.Zero
	}

	d = d.Round(scale)
	if !d.IsPositive() {
		verr.add(field, fmt.Sprintf("Number must be greater than 0 at %d decimal places", scale))
		return decimal.Zero
	}
	return d
}

func parseUserID(raw json.RawMessage, verr *ValidationError) string {
	if missing(raw) {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		verr.add("userId", "Expected string")
		return ""
	}
	return id
}
