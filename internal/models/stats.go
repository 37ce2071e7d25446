package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/guregu/null/v5"
)

// AggregatedMetric is the daily summary for one provider/tier/method.
// At most one row exists per AggregateKey.
type AggregatedMetric struct {
	Provider    string     `json:"provider_name"`
	Endpoint    string     `json:"endpoint"`
	TestType    TestType   `json:"test_type"`
	Method      string     `json:"method"`
	Date        civil.Date `json:"date"`
	P50Latency  null.Float `json:"p50_latency"`
	P90Latency  null.Float `json:"p90_latency"`
	TotalPings  int        `json:"total_pings"`
	SuccessRate float64    `json:"success_rate"`
}

// Key returns the composite identity of the row.
func (m AggregatedMetric) Key() AggregateKey {
	return AggregateKey{Provider: m.Provider, TestType: m.TestType, Method: m.Method, Date: m.Date}
}

// AggregateKey identifies one day of one provider/tier/method.
type AggregateKey struct {
	Provider string
	TestType TestType
	Method   string
	Date     civil.Date
}

// AggregateQuery filters aggregated rows. Dates form the half-open range [From, To).
type AggregateQuery struct {
	TestType TestType
	Provider string
	Method   string
	From     civil.Date
	To       civil.Date
}

// DayStart returns midnight UTC of d.
func DayStart(d civil.Date) time.Time {
	return d.In(time.UTC)
}

// Today returns the UTC calendar date of t.
func Today(t time.Time) civil.Date {
	return civil.DateOf(t.UTC())
}
