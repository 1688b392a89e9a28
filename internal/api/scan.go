package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	appscanning "github.com/avelar/facetrace/internal/app/scanning"
	"github.com/avelar/facetrace/internal/domain/scanning"
)

const (
	defaultResultsLimit = 20
	maxResultsLimit     = 100
)

// submitScanRequest is the payload for starting a scan job.
type submitScanRequest struct {
	UserID              string `json:"user_id" validate:"required,uuid"`
	ScanType            string `json:"scan_type" validate:"required,oneof=web social combined"`
	ConfidenceThreshold int    `json:"confidence_threshold" validate:"min=0,max=100"`
}

// jobResponse is the external representation of a scan job.
type jobResponse struct {
	JobID               string     `json:"job_id"`
	UserID              string     `json:"user_id"`
	ScanType            string     `json:"scan_type"`
	ConfidenceThreshold int        `json:"confidence_threshold"`
	Status              string     `json:"status"`
	Progress            int        `json:"progress"`
	TotalImagesScanned  int64      `json:"total_images_scanned"`
	TotalMatchesFound   int64      `json:"total_matches_found"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

func toJobResponse(job *scanning.Job) jobResponse {
	resp := jobResponse{
		JobID:               job.JobID().String(),
		UserID:              job.UserID().String(),
		ScanType:            job.ScanType().String(),
		ConfidenceThreshold: job.ConfidenceThreshold(),
		Status:              job.Status().String(),
		Progress:            job.Progress(),
		TotalImagesScanned:  job.TotalImagesScanned(),
		TotalMatchesFound:   job.TotalMatchesFound(),
		ErrorMessage:        job.ErrorMessage(),
		CreatedAt:           job.Timeline().CreatedAt(),
	}
	if started := job.Timeline().StartedAt(); !started.IsZero() {
		resp.StartedAt = &started
	}
	if completed := job.Timeline().CompletedAt(); !completed.IsZero() {
		resp.CompletedAt = &completed
	}
	return resp
}

// resultResponse is the external representation of a persisted match.
type resultResponse struct {
	ID              string            `json:"id"`
	JobID           string            `json:"job_id"`
	SourceURL       string            `json:"source_url"`
	ImageURL        string            `json:"image_url"`
	Confidence      int               `json:"confidence"`
	SourceType      string            `json:"source_type"`
	MediaItemID     *string           `json:"media_item_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ConfirmedByUser *bool             `json:"confirmed_by_user,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

func toResultResponse(res *scanning.Result) resultResponse {
	resp := resultResponse{
		ID:              res.ID().String(),
		JobID:           res.JobID().String(),
		SourceURL:       res.SourceURL(),
		ImageURL:        res.ImageURL(),
		Confidence:      res.Confidence(),
		SourceType:      res.SourceType().String(),
		Metadata:        res.Metadata(),
		ConfirmedByUser: res.ConfirmedByUser(),
		CreatedAt:       res.CreatedAt(),
	}
	if id := res.MediaItemID(); id != nil {
		s := id.String()
		resp.MediaItemID = &s
	}
	return resp
}

// statsResponse aggregates a job's results for the stats endpoint.
type statsResponse struct {
	TotalResults     int64            `json:"total_results"`
	ByConfidenceBand map[string]int64 `json:"by_confidence_band"`
	BySourceType     map[string]int64 `json:"by_source_type"`
	Confirmed        int64            `json:"confirmed"`
	Rejected         int64            `json:"rejected"`
	Unreviewed       int64            `json:"unreviewed"`
}

func toStatsResponse(stats *scanning.ResultStats) statsResponse {
	resp := statsResponse{
		TotalResults:     stats.TotalResults,
		ByConfidenceBand: make(map[string]int64, len(stats.ByConfidenceBand)),
		BySourceType:     make(map[string]int64, len(stats.BySourceType)),
		Confirmed:        stats.Confirmed,
		Rejected:         stats.Rejected,
		Unreviewed:       stats.Unreviewed,
	}
	for band, count := range stats.ByConfidenceBand {
		resp.ByConfidenceBand[string(band)] = count
	}
	for source, count := range stats.BySourceType {
		resp.BySourceType[string(source)] = count
	}
	return resp
}

func (s *Server) handleSubmitScan(w http.ResponseWriter, r *http.Request) {
	var req submitScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, r, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respond(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		s.respond(w, r, http.StatusBadRequest, errorResponse{Error: "invalid user_id"})
		return
	}

	job, err := s.jobs.Submit(r.Context(), appscanning.SubmitScanCommand{
		UserID:              userID,
		ScanType:            scanning.ParseScanType(req.ScanType),
		ConfidenceThreshold: req.ConfidenceThreshold,
		RequestID:           middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.respond(w, r, http.StatusAccepted, toJobResponse(job))
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.jobIDParam(w, r)
	if !ok {
		return
	}

	job, err := s.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.jobIDParam(w, r)
	if !ok {
		return
	}

	if err := s.jobs.Cancel(r.Context(), jobID); err != nil {
		s.respondError(w, r, err)
		return
	}

	job, err := s.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleScanResults(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.jobIDParam(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", defaultResultsLimit)
	if limit < 1 || limit > maxResultsLimit {
		limit = defaultResultsLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	results, err := s.jobs.Results(r.Context(), jobID, limit, offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := struct {
		Results []resultResponse `json:"results"`
		Limit   int              `json:"limit"`
		Offset  int              `json:"offset"`
	}{
		Results: make([]resultResponse, 0, len(results)),
		Limit:   limit,
		Offset:  offset,
	}
	for _, res := range results {
		resp.Results = append(resp.Results, toResultResponse(res))
	}
	s.respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleScanStats(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.jobIDParam(w, r)
	if !ok {
		return
	}

	stats, err := s.jobs.Stats(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, toStatsResponse(stats))
}

func (s *Server) jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respond(w, r, http.StatusBadRequest, errorResponse{Error: "invalid job id"})
		return uuid.Nil, false
	}
	return jobID, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
