package oasis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ahmethakanbesel/oasis-api/internal/fetcher"
	"github.com/ahmethakanbesel/oasis-api/internal/tabular"
)

const (
	labelColumn = "LABEL"

	gmtLayout = "2006-01-02T15:04:05-07:00"
	oprLayout = "2006-01-02"
)

// areaColumns and detailColumns are tried in order; the reports name the
// same concept differently.
var (
	areaColumns   = []string{"TAC_AREA_NAME", "TRADING_HUB", "TI_ID"}
	detailColumns = []string{"RENEWABLE_TYPE", "TI_DIRECTION"}
)

// Records maps the rows of an OASIS CSV table to records. Rows without a
// parseable interval start or MW value are skipped.
func Records(t *tabular.Table) ([]fetcher.Record, error) {
	if t.Len() == 0 {
		return nil, nil
	}
	if t.Index("INTERVALSTARTTIME_GMT") < 0 || t.Index("MW") < 0 {
		return nil, fmt.Errorf("unexpected oasis columns: %s", strings.Join(t.Columns, ","))
	}

	records := make([]fetcher.Record, 0, t.Len())
	for i := range t.Rows {
		start, err := parseGMT(t.Value(i, "INTERVALSTARTTIME_GMT"))
		if err != nil {
			continue
		}
		mw, err := strconv.ParseFloat(t.Value(i, "MW"), 64)
		if err != nil {
			continue
		}
		end, _ := parseGMT(t.Value(i, "INTERVALENDTIME_GMT"))
		opr, _ := time.Parse(oprLayout, t.Value(i, "OPR_DT"))
		hour, _ := strconv.Atoi(t.Value(i, "OPR_HR"))
		interval, _ := strconv.Atoi(t.Value(i, "OPR_INTERVAL"))

		records = append(records, fetcher.Record{
			IntervalStart: start,
			IntervalEnd:   end,
			OprDate:       opr,
			OprHour:       hour,
			OprInterval:   interval,
			Area:          firstValue(t, i, areaColumns),
			Item:          t.Value(i, "XML_DATA_ITEM"),
			Label:         t.Value(i, labelColumn),
			MarketRun:     t.Value(i, "MARKET_RUN_ID"),
			Detail:        firstValue(t, i, detailColumns),
			MW:            mw,
		})
	}
	return records, nil
}

func parseGMT(v string) (time.Time, error) {
	t, err := time.Parse(gmtLayout, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func firstValue(t *tabular.Table, row int, columns []string) string {
	for _, c := range columns {
		if v := t.Value(row, c); v != "" {
			return v
		}
	}
	return ""
}
