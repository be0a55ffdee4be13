package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ahmethakanbesel/oasis-api/internal/apperror"
	"github.com/ahmethakanbesel/oasis-api/internal/fetcher"
	"github.com/ahmethakanbesel/oasis-api/internal/job"
	"github.com/ahmethakanbesel/oasis-api/internal/observation"
)

const dateFormat = "2006-01-02"

type handler struct {
	obsSvc *observation.Service
	jobSvc *job.Service
	pool   *job.WorkerPool
}

type healthResponse struct {
	Status  string     `json:"status"`
	Workers *job.Stats `json:"workers,omitempty"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.pool != nil {
		stats := h.pool.Stats()
		resp.Workers = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listDatasets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.obsSvc.ListDatasets())
}

// getSplits exposes the date-range splitter. A null data field means the
// range fits in a single request.
func (h *handler) getSplits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "start and end are required")
		return
	}

	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	res, err := fetcher.Split(start, end, limit, q.Get("format"))
	switch {
	case errors.Is(err, fetcher.ErrInvalidLimit),
		errors.Is(err, fetcher.ErrMalformedInput),
		errors.Is(err, fetcher.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *handler) getObservations(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	req := observation.GetObservationsRequest{
		Dataset:   r.PathValue("dataset"),
		Key:       r.URL.Query().Get("key"),
		StartDate: startDate,
		EndDate:   endDate,
		Format:    format,
	}

	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	resp, err := h.obsSvc.GetObservations(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if format == "csv" {
		writeCSV(w, req.Dataset+".csv", observationTable(resp.Observations))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getPeaks(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	onStart, onEnd := h.obsSvc.PeakHours()
	var err error
	if v := q.Get("onPeakStart"); v != "" {
		if onStart, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "onPeakStart must be an integer")
			return
		}
	}
	if v := q.Get("onPeakEnd"); v != "" {
		if onEnd, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "onPeakEnd must be an integer")
			return
		}
	}

	format := q.Get("format")
	req := observation.GetPeaksRequest{
		Dataset:     r.PathValue("dataset"),
		Key:         q.Get("key"),
		Item:        q.Get("item"),
		StartDate:   startDate,
		EndDate:     endDate,
		OnPeakStart: onStart,
		OnPeakEnd:   onEnd,
		Format:      format,
	}

	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	resp, err := h.obsSvc.GetPeaks(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if format == "csv" {
		writeCSV(w, req.Dataset+"_peaks.csv", peakTable(resp.Peaks))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	req := job.GetJobRequest{ID: id}
	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	j, err := h.jobSvc.Get(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, j)
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := job.ListJobsRequest{
		Dataset: q.Get("dataset"),
		Key:     q.Get("key"),
		Status:  job.Status(q.Get("status")),
	}

	jobs, err := h.jobSvc.List(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

// retryJob queues the failed chunks of a partial or failed job.
func (h *handler) retryJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	jobs, err := h.jobSvc.Retry(r.Context(), job.RetryJobRequest{ID: id})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, jobs)
}

func parseJobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

func parseDateRange(w http.ResponseWriter, r *http.Request) (start, end time.Time, ok bool) {
	startStr := r.URL.Query().Get("startDate")
	if startStr == "" {
		writeError(w, http.StatusBadRequest, "startDate is required")
		return start, end, false
	}
	start, err := time.Parse(dateFormat, startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid startDate format, expected YYYY-MM-DD")
		return start, end, false
	}

	if v := r.URL.Query().Get("endDate"); v != "" {
		end, err = time.Parse(dateFormat, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid endDate format, expected YYYY-MM-DD")
			return start, end, false
		}
	}
	return start, end, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	if ae, ok := apperror.From(err); ok {
		writeError(w, ae.HTTPStatus(), ae.Message())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
