// Package overinvestment maintains the administrator-entered monthly
// over-investment amounts per manager.
package overinvestment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// User-facing messages.
const (
	msgLoadFailed   = "데이터를 불러오지 못했습니다."
	msgClearFailed  = "기존 데이터 삭제에 실패했습니다."
	msgSaveFailed   = "데이터 저장에 실패했습니다."
	msgSaved        = "데이터가 저장되었습니다."
	msgDeleteFailed = "데이터 삭제에 실패했습니다."
	msgDeleted      = "데이터가 삭제되었습니다."
	msgInvalidInput = "입력값이 올바르지 않습니다."
)

var (
	// ErrClearMonth marks a failure removing the month before a save.
	ErrClearMonth = errors.New("overinvestment: clear month")
	// ErrInsertRows marks a failure writing the replacement rows.
	ErrInsertRows = errors.New("overinvestment: insert rows")
)

// Entry is one stored ledger row.
type Entry struct {
	ID          int64     `json:"id"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	ManagerName string    `json:"manager_name"`
	Amount      float64   `json:"amount"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Row is one manager amount in a save request.
type Row struct {
	ManagerName string `json:"manager_name" validate:"required,max=100"`
	Amount      Amount `json:"amount"`
}

// SaveRequest replaces every row of one month.
type SaveRequest struct {
	Year  int   `json:"year" validate:"gte=2000,lte=2100"`
	Month int   `json:"month" validate:"gte=1,lte=12"`
	Rows  []Row `json:"rows" validate:"dive"`
}

// Period identifies a ledger month.
type Period struct {
	Year  int `validate:"gte=2000,lte=2100"`
	Month int `validate:"gte=1,lte=12"`
}

// Amount accepts JSON numbers and numeric strings with thousands separators.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps a float.
func NewAmount(v float64) Amount {
	return Amount{decimal.NewFromFloat(v)}
}

// Float64 returns the amount as a float.
func (a Amount) Float64() float64 {
	return a.InexactFloat64()
}

// UnmarshalJSON implements json.Unmarshaler. Null and empty strings are zero.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		a.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("overinvestment: amount %q: %w", string(data), err)
	}
	a.Decimal = d
	return nil
}

// MarshalJSON renders the amount as a JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}
