package overinvestment

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertBatchBindsExactDecimals(t *testing.T) {
	var rows []Row
	require.NoError(t, json.Unmarshal([]byte(`[{"manager_name":"Kim","amount":"1,234,567.89"},{"manager_name":"Lee","amount":0.1}]`), &rows))

	batch := insertBatch(2025, 7, rows, "admin")
	require.Len(t, batch.QueuedQueries, 2)

	first := batch.QueuedQueries[0]
	assert.Equal(t, insertSQL, first.SQL)
	amount, ok := first.Arguments[3].(decimal.Decimal)
	require.True(t, ok, "amount bound as %T", first.Arguments[3])
	assert.Equal(t, "1234567.89", amount.String())
	assert.Equal(t, "admin", first.Arguments[4])

	second, ok := batch.QueuedQueries[1].Arguments[3].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, second.Equal(decimal.RequireFromString("0.1")))
}
