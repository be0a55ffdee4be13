package observation

import (
	"sort"
	"time"
)

const (
	DefaultOnPeakStart = 7
	DefaultOnPeakEnd   = 22
)

// Peak holds the mean on-peak and off-peak MW of one item on one local day.
// A mean is zero when the day has no rows in that window.
type Peak struct {
	Date         time.Time `json:"date"`
	Item         string    `json:"item"`
	OnPeak       float64   `json:"onPeak"`
	OffPeak      float64   `json:"offPeak"`
	OnPeakCount  int       `json:"onPeakCount"`
	OffPeakCount int       `json:"offPeakCount"`
}

// DailyPeaks groups observations by local calendar day and item. Hours in
// [onPeakStart, onPeakEnd] are on-peak, the rest off-peak. The result is
// ordered by date, then item.
func DailyPeaks(obs []Observation, loc *time.Location, onPeakStart, onPeakEnd int) []Peak {
	type bucket struct {
		date      time.Time
		item      string
		on, off   float64
		nOn, nOff int
	}

	type groupKey struct {
		date time.Time
		item string
	}

	buckets := make(map[groupKey]*bucket)
	for _, o := range obs {
		local := UTCToLocal(o.IntervalStart, loc)
		y, m, d := local.Date()
		k := groupKey{date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), item: o.Item}

		b, ok := buckets[k]
		if !ok {
			b = &bucket{date: k.date, item: k.item}
			buckets[k] = b
		}

		if h := local.Hour(); h >= onPeakStart && h <= onPeakEnd {
			b.on += o.MW
			b.nOn++
		} else {
			b.off += o.MW
			b.nOff++
		}
	}

	peaks := make([]Peak, 0, len(buckets))
	for _, b := range buckets {
		p := Peak{Date: b.date, Item: b.item, OnPeakCount: b.nOn, OffPeakCount: b.nOff}
		if b.nOn > 0 {
			p.OnPeak = b.on / float64(b.nOn)
		}
		if b.nOff > 0 {
			p.OffPeak = b.off / float64(b.nOff)
		}
		peaks = append(peaks, p)
	}

	sort.Slice(peaks, func(i, j int) bool {
		if !peaks[i].Date.Equal(peaks[j].Date) {
			return peaks[i].Date.Before(peaks[j].Date)
		}
		return peaks[i].Item < peaks[j].Item
	})
	return peaks
}
