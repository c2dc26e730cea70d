package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

func TestOptional_DecodeDistinguishesAbsentNullAndValue(t *testing.T) {
	var upd domain.UserUpdate
	require.NoError(t, json.Unmarshal([]byte(`{"address":"Lenina 1","email":null}`), &upd))

	addr, ok := upd.Address.Get()
	assert.True(t, ok)
	assert.Equal(t, "Lenina 1", addr)

	assert.True(t, upd.Email.IsSet())
	assert.True(t, upd.Email.IsNull())

	assert.False(t, upd.Name.IsSet())
	assert.False(t, upd.Phone.IsSet())
	assert.False(t, upd.Password.IsSet())
}

func TestOptional_EmptyObjectIsEmptyUpdate(t *testing.T) {
	var upd domain.OrderUpdate
	require.NoError(t, json.Unmarshal([]byte(`{}`), &upd))
	assert.True(t, upd.IsEmpty())
}

func TestOptional_DecimalAndStatus(t *testing.T) {
	var upd domain.ProductUpdate
	require.NoError(t, json.Unmarshal([]byte(`{"price":149.90}`), &upd))

	price, ok := upd.Price.Get()
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("149.9")))

	var orderUpd domain.OrderUpdate
	require.NoError(t, json.Unmarshal([]byte(`{"status":"cancelled"}`), &orderUpd))
	status, ok := orderUpd.Status.Get()
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusCancelled, status)
}

func TestOptional_InvalidTypeFails(t *testing.T) {
	var upd domain.ProductUpdate
	assert.Error(t, json.Unmarshal([]byte(`{"name":42}`), &upd))
}

func TestOptional_Marshal(t *testing.T) {
	data, err := json.Marshal(struct {
		A domain.Optional[string] `json:"a"`
		B domain.Optional[string] `json:"b"`
	}{A: domain.Some("x")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"x","b":null}`, string(data))
}
