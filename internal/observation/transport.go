package observation

import (
	"time"

	"github.com/ahmethakanbesel/oasis-api/internal/apperror"
	"github.com/ahmethakanbesel/oasis-api/internal/job"
)

type GetObservationsRequest struct {
	Dataset   string
	Key       string
	StartDate time.Time
	EndDate   time.Time
	Format    string // "json" or "csv"
}

func (r GetObservationsRequest) Validate() *apperror.AppError {
	if r.Dataset == "" {
		return apperror.New(apperror.BadRequest, "dataset is required")
	}
	return validateRange(r.StartDate, r.EndDate, r.Format)
}

type GetPeaksRequest struct {
	Dataset     string
	Key         string
	Item        string
	StartDate   time.Time
	EndDate     time.Time
	OnPeakStart int
	OnPeakEnd   int
	Format      string
}

func (r GetPeaksRequest) Validate() *apperror.AppError {
	if r.Dataset == "" {
		return apperror.New(apperror.BadRequest, "dataset is required")
	}
	if r.OnPeakStart < 0 || r.OnPeakStart > 23 || r.OnPeakEnd < 0 || r.OnPeakEnd > 23 {
		return apperror.New(apperror.BadRequest, "on-peak hours must be between 0 and 23")
	}
	if r.OnPeakEnd < r.OnPeakStart {
		return apperror.New(apperror.BadRequest, "onPeakEnd must not be before onPeakStart")
	}
	return validateRange(r.StartDate, r.EndDate, r.Format)
}

func validateRange(start, end time.Time, format string) *apperror.AppError {
	if start.IsZero() {
		return apperror.New(apperror.BadRequest, "startDate is required")
	}
	if !end.IsZero() && end.Before(start) {
		return apperror.New(apperror.BadRequest, "endDate must be after startDate")
	}
	if format != "" && format != "json" && format != "csv" {
		return apperror.New(apperror.BadRequest, "format must be json or csv")
	}
	return nil
}

type GetObservationsResponse struct {
	Observations []Observation `json:"observations"`
	Job          *job.Job      `json:"job,omitempty"`
}

type GetPeaksResponse struct {
	Peaks []Peak   `json:"peaks"`
	Job   *job.Job `json:"job,omitempty"`
}
