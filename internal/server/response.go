package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ahmethakanbesel/oasis-api/internal/observation"
	"github.com/ahmethakanbesel/oasis-api/internal/tabular"
)

type APIResponse[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func writeJSON[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[T]{
		Message: "ok",
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[string]{
		Message: message,
		Data:    "",
	})
}

func writeCSV(w http.ResponseWriter, filename string, t *tabular.Table) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
	w.WriteHeader(http.StatusOK)

	if err := t.WriteCSV(w); err != nil {
		slog.Error("write csv response", "file", filename, "error", err)
	}
}

func observationTable(obs []observation.Observation) *tabular.Table {
	t := &tabular.Table{Columns: []string{
		"Dataset", "Area", "Item", "Label", "MarketRun", "Detail",
		"IntervalStartUTC", "IntervalEndUTC", "LocalStart", "OprDate", "OprHour", "OprInterval", "MW",
	}}
	for _, o := range obs {
		t.Rows = append(t.Rows, []string{
			o.Dataset, o.Area, o.Item, o.Label, o.MarketRun, o.Detail,
			o.IntervalStart.UTC().Format(time.RFC3339),
			formatInstant(o.IntervalEnd),
			formatInstant(o.LocalStart),
			o.OprDate.Format(time.DateOnly),
			strconv.Itoa(o.OprHour),
			strconv.Itoa(o.OprInterval),
			strconv.FormatFloat(o.MW, 'f', -1, 64),
		})
	}
	return t
}

func peakTable(peaks []observation.Peak) *tabular.Table {
	t := &tabular.Table{Columns: []string{"Date", "Item", "OnPeak", "OffPeak", "OnPeakCount", "OffPeakCount"}}
	for _, p := range peaks {
		t.Rows = append(t.Rows, []string{
			p.Date.Format(time.DateOnly),
			p.Item,
			strconv.FormatFloat(p.OnPeak, 'f', 3, 64),
			strconv.FormatFloat(p.OffPeak, 'f', 3, 64),
			strconv.Itoa(p.OnPeakCount),
			strconv.Itoa(p.OffPeakCount),
		})
	}
	return t
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
