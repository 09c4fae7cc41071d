package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"transcript-insights-go/internal/dataset"
	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/metrics"
	"transcript-insights-go/internal/pipeline"
	"transcript-insights-go/internal/store"
	"transcript-insights-go/internal/types"
)

type server struct {
	store          store.Store
	runner         *runner
	personaDefault string
}

type jobRequest struct {
	Persona              string              `json:"persona"`
	Text                 string              `json:"text"`
	Records              []types.TimedRecord `json:"records"`
	AudioURL             string              `json:"audio_url"`
	ArtifactPath         string              `json:"artifact_path"`
	PreAuthorizedCredits float64             `json:"pre_authorized_credits"`
}

type jobResponse struct {
	Job      *types.Job       `json:"job"`
	Logs     []types.LogEntry `json:"logs,omitempty"`
	Document *types.Document  `json:"document,omitempty"`
}

func (s *server) routes(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Debug("health check")
		fmt.Fprint(w, "ok")
	})
	mux.Handle("GET /metrics", m.Handler())

	mux.HandleFunc("POST /jobs", s.createJob)
	mux.HandleFunc("GET /jobs/{id}", s.getJob)
	mux.HandleFunc("POST /jobs/{id}/retry", s.retryJob)
	mux.HandleFunc("POST /batch", s.batch)
	return mux
}

func (s *server) createJob(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "create_job")

	var req jobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 32<<20)).Decode(&req); err != nil {
		reqLog.WithField("error", err.Error()).Warn("invalid job request")
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Text == "" && len(req.Records) == 0 && req.AudioURL == "" {
		http.Error(w, "one of text, records or audio_url is required", http.StatusBadRequest)
		return
	}
	if req.Persona == "" {
		req.Persona = s.personaDefault
	}
	job := &types.Job{
		Persona:              req.Persona,
		Text:                 req.Text,
		Records:              req.Records,
		AudioURL:             req.AudioURL,
		ArtifactPath:         req.ArtifactPath,
		PreAuthorizedCredits: req.PreAuthorizedCredits,
	}
	if err := s.runner.submit(r.Context(), job); err != nil {
		reqLog.WithField("error", err.Error()).Error("failed to submit job")
		http.Error(w, "failed to submit job", http.StatusInternalServerError)
		return
	}
	reqLog.WithField("job_id", job.ID).Info("job accepted")
	writeJSON(w, http.StatusAccepted, jobResponse{Job: job})
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "get_job")
	id := r.PathValue("id")

	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		reqLog.WithField("error", err.Error()).Error("failed to load job")
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	resp := jobResponse{Job: job}
	if resp.Logs, err = s.store.Logs(r.Context(), id); err != nil {
		reqLog.WithField("error", err.Error()).Warn("failed to load job logs")
	}
	if job.Status == types.StatusCompleted {
		if resp.Document, err = s.store.GetDocument(r.Context(), id); err != nil {
			reqLog.WithField("error", err.Error()).Warn("failed to load document")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// retryJob requeues a FAILED job and runs it again, reusing the sections
// the failed run already persisted.
func (s *server) retryJob(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "retry_job")
	id := r.PathValue("id")

	job, err := s.runner.orch.Requeue(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "job not found", http.StatusNotFound)
		return
	case errors.Is(err, pipeline.ErrJobNotFailed):
		http.Error(w, fmt.Sprintf("job is %s, only FAILED jobs can be retried", job.Status), http.StatusConflict)
		return
	case err != nil:
		reqLog.WithField("error", err.Error()).Error("failed to requeue job")
		http.Error(w, "failed to requeue job", http.StatusInternalServerError)
		return
	}
	s.runner.start(id)
	reqLog.WithField("job_id", id).Info("job requeued")
	writeJSON(w, http.StatusAccepted, jobResponse{Job: job})
}

// batch queues every row of a spreadsheet manifest and runs them in order.
func (s *server) batch(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "batch")
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}
	rows, err := dataset.Load(path)
	if err != nil {
		reqLog.WithField("error", err.Error()).Error("manifest load error")
		http.Error(w, "manifest load error", http.StatusBadRequest)
		return
	}

	jobs := make([]*types.Job, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		persona := row.Persona
		if persona == "" {
			persona = s.personaDefault
		}
		job := &types.Job{
			Persona:              persona,
			SourceKind:           row.Kind,
			Text:                 row.Text,
			AudioURL:             row.AudioURL,
			ArtifactPath:         row.ArtifactPath,
			PreAuthorizedCredits: row.Credits,
		}
		if err := s.runner.orch.Submit(r.Context(), job); err != nil {
			reqLog.WithField("line", row.Line).WithField("error", err.Error()).Error("failed to submit manifest row")
			continue
		}
		jobs = append(jobs, job)
		ids = append(ids, job.ID)
	}
	s.runner.start(ids...)
	reqLog.WithField("rows", len(rows)).WithField("queued", len(ids)).Info("batch queued")
	writeJSON(w, http.StatusAccepted, jobs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.New().WithError(err).Error("failed to write response")
	}
}
