package observation

import (
	"time"

	"github.com/ahmethakanbesel/oasis-api/internal/fetcher"
)

// Observation is one stored dataset row. LocalStart is derived on read and
// never persisted.
type Observation struct {
	ID            int64     `json:"id"`
	Dataset       string    `json:"dataset"`
	Area          string    `json:"area"`
	Item          string    `json:"item"`
	Label         string    `json:"label"`
	MarketRun     string    `json:"marketRun"`
	Detail        string    `json:"detail,omitempty"`
	IntervalStart time.Time `json:"intervalStart"`
	IntervalEnd   time.Time `json:"intervalEnd"`
	LocalStart    time.Time `json:"localStart"`
	OprDate       time.Time `json:"oprDate"`
	OprHour       int       `json:"oprHour"`
	OprInterval   int       `json:"oprInterval"`
	MW            float64   `json:"mw"`
	CreatedAt     time.Time `json:"createdAt"`
}

// FromRecords tags fetched records with their dataset. Records without an
// operating date get the local calendar date of their interval start.
func FromRecords(dataset string, records []fetcher.Record, loc *time.Location) []Observation {
	out := make([]Observation, len(records))
	for i, r := range records {
		opr := r.OprDate
		if opr.IsZero() {
			y, m, d := UTCToLocal(r.IntervalStart, loc).Date()
			opr = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
		out[i] = Observation{
			Dataset:       dataset,
			Area:          r.Area,
			Item:          r.Item,
			Label:         r.Label,
			MarketRun:     r.MarketRun,
			Detail:        r.Detail,
			IntervalStart: r.IntervalStart,
			IntervalEnd:   r.IntervalEnd,
			OprDate:       opr,
			OprHour:       r.OprHour,
			OprInterval:   r.OprInterval,
			MW:            r.MW,
		}
	}
	return out
}

// UTCToLocal converts a UTC instant to wall-clock time in loc.
func UTCToLocal(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return t.UTC().In(loc)
}
