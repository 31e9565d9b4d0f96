package api

import (
	"errors"
	"strings"
	"testing"
	"time"

	"order-matcher/internal/engine"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorRounding(t *testing.T) {
	v := Validator{PriceScale: 2, QuantityScale: 2}

	tests := []struct {
		name  string
		price string
		want  string
	}{
		{"half rounds up", `100.005`, "100.01"},
		{"below half rounds down", `100.004`, "100"},
		{"string form", `"42.1"`, "42.1"},
		{"padded string", `" 7 "`, "7"},
		{"exponent", `1.5e2`, "150"},
		{"smallest tick", `0.005`, "0.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := v.Parse(strings.NewReader(`{"side":"BUY","quantity":1,"price":` + tt.price + `}`))
			require.NoError(t, err)
			assert.True(t, req.Price.Equal(decimal.RequireFromString(tt.want)), "got %s", req.Price)
		})
	}
}

func TestValidatorScaleIsConfigurable(t *testing.T) {
	v := Validator{PriceScale: 0, QuantityScale: 4}

	req, err := v.Parse(strings.NewReader(`{"side":"SELL","price":9.6,"quantity":0.00015}`))
	require.NoError(t, err)
	assert.True(t, req.Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, req.Quantity.Equal(decimal.RequireFromString("0.0002")))
	assert.Equal(t, engine.SELL, req.Side)
}

func TestValidatorUserID(t *testing.T) {
	v := Validator{PriceScale: 2, QuantityScale: 2}

	req, err := v.Parse(strings.NewReader(`{"side":"BUY","price":1,"quantity":1,"userId":"alice"}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", req.UserID)

	req, err = v.Parse(strings.NewReader(`{"side":"BUY","price":1,"quantity":1,"userId":null}`))
	require.NoError(t, err)
	assert.Empty(t, req.UserID)
}

func TestValidationErrorMessage(t *testing.T) {
	_, err := Validator{}.Parse(strings.NewReader(`{"side":"BUY","price":"NaN","quantity":1}`))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "validation failed: price: Expected number", err.Error())
}

func TestValidatorRejectsOutOfRangeAmounts(t *testing.T) {
	v := Validator{PriceScale: 2, QuantityScale: 2}

	tests := []struct {
		name    string
		price   string
		message string
	}{
		{"beyond float range", `1e400`, "Number must be less than 1e18"},
		{"huge exponent", `1e5000000`, "Number must be less than 1e18"},
		{"huge exponent as string", `"1e5000000"`, "Number must be less than 1e18"},
		{"nineteen integer digits", `1000000000000000000`, "Number must be less than 1e18"},
		{"tiny exponent", `1e-5000000`, "Number must be greater than 0 at 2 decimal places"},
		{"exponent beyond int32", `1e99999999999`, "Expected number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			_, err := v.Parse(strings.NewReader(`{"side":"BUY","quantity":1,"price":` + tt.price + `}`))
			elapsed := time.Since(start)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected a validation error, got %v", err)
			require.Len(t, verr.Details, 1)
			assert.Equal(t, "price", verr.Details[0].Field)
			assert.Equal(t, tt.message, verr.Details[0].Message)
			assert.Less(t, elapsed, 100*time.Millisecond)
		})
	}
}

func TestValidatorAcceptsLargestAmount(t *testing.T) {
	v := Validator{PriceScale: 2, QuantityScale: 2}

	req, err := v.Parse(strings.NewReader(`{"side":"SELL","price":999999999999999999.994,"quantity":"1e17"}`))
	require.NoError(t, err)
	assert.True(t, req.Price.Equal(decimal.RequireFromString("999999999999999999.99")))
	assert.True(t, req.Quantity.Equal(decimal.New(1, 17)))
}
