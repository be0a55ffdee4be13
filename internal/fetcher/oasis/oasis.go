// Package oasis implements fetchers for the CAISO OASIS SingleZip API.
// Every request covers at most MaxSpanDays days, so longer ranges are split
// into chunks which are downloaded, unzipped and concatenated in order.
package oasis

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ahmethakanbesel/oasis-api/internal/fetcher"
	"github.com/ahmethakanbesel/oasis-api/internal/tabular"
)

const (
	DefaultBaseURL = "http://oasis.caiso.com/oasisapi/SingleZip"

	// DefaultMaxSpanDays is the longest range OASIS accepts in one call.
	DefaultMaxSpanDays = 30

	// Day boundaries are sent as 08:00 UTC, midnight Pacific Standard Time.
	timestampSuffix = "T08:00-0000"
	requestDate     = "20060102"
	resultFormatCSV = "6"
)

const (
	DatasetDemand       = "demand"
	DatasetRenewable    = "renewable"
	DatasetTransmission = "transmission"
)

// TransmissionInterfaces are the interties tracked by default.
var TransmissionInterfaces = []string{
	"NOB_ITC", "ADLANTOVICTVL-SP_ITC", "ELDORADO_ITC", "MALIN500", "MCCLMKTPC_ITC",
	"MEAD_ITC", "PATH15_BG", "PALOVRDE_ITC", "PATH26_BG", "VICTVL_ITC",
}

// DefaultTransmissionLabels keeps only constraint and hourly TTC rows.
var DefaultTransmissionLabels = []string{"Constraint", "Hourly TTC"}

// query describes one OASIS report.
type query struct {
	dataset    string
	name       string
	keyParam   string // query parameter that receives the fetch key, if any
	keyNeeded  bool
	areaColumn string // filtered by key when keyParam is empty
}

var (
	demandQuery       = query{dataset: DatasetDemand, name: "SLD_FCST", areaColumn: "TAC_AREA_NAME"}
	renewableQuery    = query{dataset: DatasetRenewable, name: "SLD_REN_FCST", areaColumn: "TRADING_HUB"}
	transmissionQuery = query{dataset: DatasetTransmission, name: "TRNS_CURR_USAGE", keyParam: "ti_id", keyNeeded: true}
)

type Fetcher struct {
	query       query
	client      *Client
	workers     int
	maxSpanDays int
	direction   string
	labels      []string
}

type Option func(*Fetcher)

func WithWorkers(n int) Option {
	return func(f *Fetcher) { f.workers = n }
}

func WithClient(c *Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithMaxSpanDays(n int) Option {
	return func(f *Fetcher) { f.maxSpanDays = n }
}

// WithDirection sets ti_direction for transmission queries.
func WithDirection(d string) Option {
	return func(f *Fetcher) { f.direction = d }
}

// WithLabels keeps only rows whose LABEL is one of labels. No labels keeps
// every row.
func WithLabels(labels ...string) Option {
	return func(f *Fetcher) { f.labels = labels }
}

func newFetcher(q query, opts []Option) *Fetcher {
	f := &Fetcher{
		query:       q,
		workers:     1,
		maxSpanDays: DefaultMaxSpanDays,
	}
	for _, o := range opts {
		o(f)
	}
	if f.client == nil {
		f.client = NewClient(nil, DefaultBaseURL, nil)
	}
	return f
}

// NewDemand fetches the system load forecast (SLD_FCST).
func NewDemand(opts ...Option) *Fetcher {
	return newFetcher(demandQuery, opts)
}

// NewRenewable fetches the wind and solar forecast (SLD_REN_FCST).
func NewRenewable(opts ...Option) *Fetcher {
	return newFetcher(renewableQuery, opts)
}

// NewTransmission fetches current transmission usage (TRNS_CURR_USAGE)
// for the interface passed as key.
func NewTransmission(opts ...Option) *Fetcher {
	defaults := []Option{WithDirection("ALL"), WithLabels(DefaultTransmissionLabels...)}
	return newFetcher(transmissionQuery, append(defaults, opts...))
}

func (f *Fetcher) Dataset() string { return f.query.dataset }

func (f *Fetcher) MaxSpanDays() int { return f.maxSpanDays }

func (f *Fetcher) Fetch(ctx context.Context, key string, from, to time.Time) (*fetcher.Result, error) {
	if f.query.keyNeeded && key == "" {
		return nil, fmt.Errorf("%s requires a %s", f.query.dataset, f.query.keyParam)
	}
	if from.IsZero() {
		return nil, fmt.Errorf("start date cannot be empty")
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}

	chunks, err := fetcher.Chunks(from, to, f.maxSpanDays)
	if err != nil {
		return nil, err
	}

	table, failed := fetcher.FetchChunks(ctx, f.query.dataset, chunks, f.workers, func(ctx context.Context, c fetcher.DateRange) (*tabular.Table, error) {
		return f.fetchChunk(ctx, key, c)
	})

	records, err := Records(table)
	if err != nil {
		return nil, err
	}

	return &fetcher.Result{Table: table, Records: records, Failed: failed}, nil
}

func (f *Fetcher) fetchChunk(ctx context.Context, key string, c fetcher.DateRange) (*tabular.Table, error) {
	raw, err := f.client.FetchArchive(ctx, f.params(key, c))
	if err != nil {
		return nil, err
	}
	t, err := tabular.ExtractTable(raw)
	if err != nil {
		return nil, err
	}
	if f.query.keyParam == "" && key != "" {
		t = t.Filter(f.query.areaColumn, key)
	}
	if len(f.labels) > 0 {
		t = t.Filter(labelColumn, f.labels...)
	}
	return t, nil
}

// params builds the query for an inclusive day range. OASIS treats
// enddatetime as exclusive, so it is set to the start of the next day.
func (f *Fetcher) params(key string, c fetcher.DateRange) url.Values {
	p := url.Values{}
	p.Set("resultformat", resultFormatCSV)
	p.Set("queryname", f.query.name)
	p.Set("version", "1")
	p.Set("startdatetime", c.From.Format(requestDate)+timestampSuffix)
	p.Set("enddatetime", c.To.AddDate(0, 0, 1).Format(requestDate)+timestampSuffix)
	if f.query.keyParam != "" && key != "" {
		p.Set(f.query.keyParam, key)
	}
	if f.query.dataset == DatasetTransmission && f.direction != "" {
		p.Set("ti_direction", f.direction)
	}
	return p
}
