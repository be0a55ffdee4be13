package fetcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/ncruces/go-strftime"
)

// DefaultDateFormat is the strftime pattern used when none is given.
const DefaultDateFormat = "%m/%d/%y"

var (
	ErrMalformedInput = errors.New("malformed date input")
	ErrInvalidLimit   = errors.New("limit must be a positive number of days")
	ErrInvalidRange   = errors.New("start date is after end date")
)

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Days returns the number of calendar days covered by the range.
func (r DateRange) Days() int {
	return daysBetween(r.From, r.To) + 1
}

func (r DateRange) String() string {
	return r.From.Format(time.DateOnly) + "/" + r.To.Format(time.DateOnly)
}

// SplitResult holds the chunk boundaries rendered in the caller's format.
type SplitResult struct {
	StartDates []string `json:"startDates"`
	EndDates   []string `json:"endDates"`
}

// Split parses start and end with the strftime format and splits the
// interval into chunks of at most limit days. A nil result with a nil
// error means the whole interval fits into a single request.
func Split(start, end string, limit int, format string) (*SplitResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	if format == "" {
		format = DefaultDateFormat
	}

	from, err := ParseDate(start, format)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(end, format)
	if err != nil {
		return nil, err
	}

	chunks, err := SplitDateRange(from, to, limit)
	if err != nil || chunks == nil {
		return nil, err
	}

	res := &SplitResult{
		StartDates: make([]string, len(chunks)),
		EndDates:   make([]string, len(chunks)),
	}
	for i, c := range chunks {
		res.StartDates[i] = strftime.Format(format, c.From)
		res.EndDates[i] = strftime.Format(format, c.To)
	}
	return res, nil
}

// SplitDateRange returns nil when to-from is shorter than limitDays.
// Otherwise the first chunk is [from, from+limit-1], every following chunk
// starts the day after the previous one ends and extends limitDays further,
// unless the remaining distance to `to` is at most limitDays, in which case
// it ends at `to`.
func SplitDateRange(from, to time.Time, limitDays int) ([]DateRange, error) {
	if limitDays <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limitDays)
	}
	from, to = truncateDay(from), truncateDay(to)
	if from.After(to) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	span := daysBetween(from, to)
	if span < limitDays {
		return nil, nil
	}

	// Count inclusive days so the last chunk always ends on `to`, including
	// when span is an exact multiple of limitDays.
	n := (span + limitDays) / limitDays

	chunks := make([]DateRange, 0, n)
	end := from.AddDate(0, 0, limitDays-1)
	chunks = append(chunks, DateRange{From: from, To: end})
	for len(chunks) < n {
		start := end.AddDate(0, 0, 1)
		if daysBetween(end, to) > limitDays {
			end = end.AddDate(0, 0, limitDays)
		} else {
			end = to
		}
		chunks = append(chunks, DateRange{From: start, To: end})
	}
	return chunks, nil
}

// Chunks is SplitDateRange for callers that always want a list: when no
// split is needed the whole range is returned as the only chunk.
func Chunks(from, to time.Time, limitDays int) ([]DateRange, error) {
	chunks, err := SplitDateRange(from, to, limitDays)
	if err != nil {
		return nil, err
	}
	if chunks == nil {
		return []DateRange{{From: truncateDay(from), To: truncateDay(to)}}, nil
	}
	return chunks, nil
}

// ParseDate parses value with a strftime format into a UTC calendar date.
// Numeric fields must be zero-padded, so "1/1/17" does not match %m/%d/%y.
func ParseDate(value, format string) (time.Time, error) {
	layout, err := strftime.Layout(format)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: format %q: %v", ErrMalformedInput, format, err)
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q does not match %q", ErrMalformedInput, value, format)
	}
	return truncateDay(t), nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
