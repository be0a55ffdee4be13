package server

import (
	"net/http"

	"github.com/ahmethakanbesel/oasis-api/internal/job"
	"github.com/ahmethakanbesel/oasis-api/internal/observation"
)

// NewHandler returns the routed handler wrapped in middleware. pool may be
// nil, in which case /health omits worker stats.
func NewHandler(obsSvc *observation.Service, jobSvc *job.Service, pool *job.WorkerPool) http.Handler {
	h := &handler{
		obsSvc: obsSvc,
		jobSvc: jobSvc,
		pool:   pool,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/v1/datasets", h.listDatasets)
	mux.HandleFunc("GET /api/v1/splits", h.getSplits)
	mux.HandleFunc("GET /api/v1/observations/{dataset}", h.getObservations)
	mux.HandleFunc("GET /api/v1/observations/{dataset}/peaks", h.getPeaks)
	mux.HandleFunc("GET /api/v1/jobs", h.listJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", h.getJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/retry", h.retryJob)

	// recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
