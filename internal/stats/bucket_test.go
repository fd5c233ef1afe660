package stats

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misung-crm/misung-crm/internal/rowstore"
)

func TestBucketizeSkipsMalformedRowsAndConservesSums(t *testing.T) {
	rows := []rowstore.Row{
		{"d": "2025-01-15", "a": 100.0},
		{"d": "2025-01-20", "a": "1,250"},
		{"d": "garbage", "a": 5},
		{"d": "2024-12-31", "a": 7},
		{"d": "2025-12-01", "a": nil},
		{"d": time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC), "a": math.NaN()},
		{"d": pgtype.Date{Time: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Valid: true}, "a": pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}},
		{"a": 99},
		{"d": pgtype.Date{}, "a": 1},
	}

	got := Bucketize(rows, "d", "a", 2025)
	require.Len(t, got, 12)
	for i, v := range got {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "month %d", i+1)
	}
	assert.InDelta(t, 1350, got[0], 1e-9)
	assert.InDelta(t, 123.45, got[2], 1e-9)
	assert.Zero(t, got[5])
	assert.Zero(t, got[11])
	assert.InDelta(t, 1350+123.45, got.Total(), 1e-9)
}

func TestBucketizeEmptyInputHasTwelveZeroMonths(t *testing.T) {
	got := Bucketize(nil, "d", "a", 2025)
	assert.Equal(t, Months{}, got)
}

func TestBucketizerUsesLocationForInstants(t *testing.T) {
	kst := time.FixedZone("KST", 9*3600)
	rows := []rowstore.Row{{"created_at": "2025-01-31T20:00:00Z", "n": 1}}

	utc := Bucketizer{Location: time.UTC}.Bucket(rows, DateColumn("created_at"), Sum("n"), 2025)
	seoul := Bucketizer{Location: kst}.Bucket(rows, DateColumn("created_at"), Sum("n"), 2025)

	assert.Equal(t, 1.0, utc[0])
	assert.Equal(t, 1.0, seoul[1])
	assert.Zero(t, seoul[0])
}

func TestBucketizerKeepsCalendarDates(t *testing.T) {
	kst := time.FixedZone("KST", 9*3600)
	west := time.FixedZone("PST", -8*3600)
	rows := []rowstore.Row{
		{"d": time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), "n": 1},
		{"d": "2025-04-01", "n": 1},
	}
	for _, loc := range []*time.Location{kst, west, time.UTC} {
		got := Bucketizer{Location: loc}.Bucket(rows, DateColumn("d"), Sum("n"), 2025)
		assert.Equal(t, 2.0, got[3], loc.String())
	}
}

func TestPeriodColumnsAndCountIf(t *testing.T) {
	rows := []rowstore.Row{
		{"year": 2025, "month": int16(4), "amount": "1,000"},
		{"year": int64(2025), "month": 13, "amount": 5},
		{"year": 2024, "month": 4, "amount": 5},
		{"year": "2025", "month": "4", "amount": 500.5},
	}
	got := Bucketizer{}.Bucket(rows, PeriodColumns("year", "month"), Sum("amount"), 2025)
	assert.InDelta(t, 1500.5, got[3], 1e-9)
	assert.InDelta(t, 1500.5, got.Total(), 1e-9)

	flags := []rowstore.Row{
		{"created_at": "2025-02-02", "flag": true},
		{"created_at": "2025-02-03", "flag": false},
		{"created_at": "2025-02-04", "flag": pgtype.Bool{Bool: true, Valid: true}},
		{"created_at": "2025-02-05", "flag": "true"},
		{"created_at": "2025-02-06"},
	}
	counts := Bucketizer{}.Bucket(flags, DateColumn("created_at"), CountIf("flag"), 2025)
	assert.Equal(t, 3.0, counts[1])
}

func TestMonthsArithmetic(t *testing.T) {
	a := Months{1, 2, 3}
	b := Months{1, 1, 1, 1}
	assert.Equal(t, Months{2, 3, 4, 1}, a.Add(b))
	assert.Equal(t, Months{0, 1, 2, -1}, a.Sub(b))
	assert.Equal(t, Months{1, 2, 3}, a)
}

func TestAchievement(t *testing.T) {
	for _, actual := range []float64{0, 100, -5} {
		assert.Equal(t, 0, Achievement(0, actual))
	}
	assert.Equal(t, 33, Achievement(3, 1))
	assert.Equal(t, 67, Achievement(3, 2))
	assert.Equal(t, 80, Achievement(5, 4))
	assert.Equal(t, 13, Achievement(8, 1))
	assert.Equal(t, 150, Achievement(2, 3))
}

func TestActivityScore(t *testing.T) {
	assert.Equal(t, 0.0, ActivityScore(0))
	assert.Equal(t, 1.0, ActivityScore(1))
	assert.Equal(t, 1.2, ActivityScore(3))
	assert.Equal(t, 1.9, ActivityScore(10))
}

func TestAggregatorDerivationsSeeEarlierOutputs(t *testing.T) {
	a := Aggregator{
		Bindings: []Binding{
			{Source: "in", Date: DateColumn("d"), Measure: Sum("v"), Output: "revenue"},
			{Source: "out", Date: DateColumn("d"), Measure: Sum("v"), Output: "cost"},
			{Source: "out2", Date: DateColumn("d"), Measure: Sum("v"), Output: "cost"},
		},
		Derivations: []Derivation{
			Difference("profit", "revenue", "cost"),
			Total("both", "profit", "cost"),
		},
	}
	series := a.Aggregate(Bucketizer{}, map[string][]rowstore.Row{
		"in":   {{"d": "2025-05-01", "v": 100}},
		"out":  {{"d": "2025-05-02", "v": 30}},
		"out2": {{"d": "2025-05-03", "v": 20}},
	}, 2025)
	assert.Equal(t, 50.0, series["cost"][4])
	assert.Equal(t, 50.0, series["profit"][4])
	assert.Equal(t, 100.0, series["both"][4])
	assert.Equal(t, Months{}, series["missing"])
}

func TestSiteOverInvestmentSumsDuplicateSites(t *testing.T) {
	got := siteOverInvestment([]rowstore.Row{
		{"cms": "A", "sales_amount": 100.0, "purchase_amount": 130.0},
		{"cms": "A", "sales_amount": 50.0, "purchase_amount": 60.0},
		{"cms": "B", "sales_amount": 80.0, "purchase_amount": 20.0},
	})
	assert.Equal(t, map[string]float64{"A": 40.0}, got)
}
