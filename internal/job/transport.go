package job

import (
	"fmt"

	"github.com/ahmethakanbesel/oasis-api/internal/apperror"
)

type GetJobRequest struct {
	ID int64
}

func (r GetJobRequest) Validate() *apperror.AppError {
	if r.ID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid job id")
	}
	return nil
}

// ListJobsRequest filters jobs. Empty fields match everything.
type ListJobsRequest struct {
	Dataset string
	Key     string
	Status  Status
}

func (r ListJobsRequest) Validate() *apperror.AppError {
	if r.Key != "" && r.Dataset == "" {
		return apperror.New(apperror.BadRequest, "key filter requires a dataset")
	}
	if r.Status != "" && !r.Status.Valid() {
		return apperror.New(apperror.BadRequest, fmt.Sprintf("unknown job status %q", r.Status))
	}
	return nil
}

type RetryJobRequest struct {
	ID int64
}

func (r RetryJobRequest) Validate() *apperror.AppError {
	if r.ID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid job id")
	}
	return nil
}
