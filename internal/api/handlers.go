package api

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/redlinekit/redline/core/cache"
	"github.com/redlinekit/redline/core/cas"
	"github.com/redlinekit/redline/core/errors"
	"github.com/redlinekit/redline/core/linearize"
	"github.com/redlinekit/redline/internal/docx"
	"github.com/redlinekit/redline/internal/logging"
	"github.com/redlinekit/redline/internal/store"
	"github.com/redlinekit/redline/internal/validation"
)

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the /healthz payload.
type HealthInfo struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Jobs        int    `json:"jobs"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"name": "redline API",
		"endpoints": []string{
			"POST /api/v1/convert",
			"GET /api/v1/jobs",
			"GET /api/v1/jobs/{id}",
			"WS /ws",
			"GET /healthz",
		},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	respond(w, http.StatusOK, HealthInfo{
		Status:      "ok",
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Jobs:        s.jobs.Len(),
		Subscribers: s.hub.ClientCount(),
	})
}

// handleConvert accepts a .docx upload, registers a job, and converts it in
// the background. The body is either multipart form data with a "file"
// field or the raw container bytes; raw uploads may carry a "name" query
// parameter.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	name, data, err := readUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_UPLOAD", err.Error())
		return
	}
	if err := validation.ValidateUpload(data); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_UPLOAD", err.Error())
		return
	}

	job := s.jobs.Create(name, int64(len(data)))
	s.hub.Broadcast(ProgressMessage{JobID: job.ID, Stage: StageReceived, Detail: name})
	go s.runJob(job.ID, name, data)

	respond(w, http.StatusAccepted, job)
}

// handleJobs lists jobs, newest first.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	jobs := s.jobs.List()
	respondList(w, http.StatusOK, jobs, len(jobs))
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "MISSING_ID", "Job ID is required")
		return
	}

	job, ok := s.jobs.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found: "+id)
		return
	}
	if job.Result != nil {
		w.Header().Set("ETag", `"`+job.Result.Hash+`"`)
	}
	respond(w, http.StatusOK, job)
}

// readUpload extracts the source name and payload from the request. The
// payload is read through a limit one byte past MaxUploadSize so oversized
// uploads survive to ValidateUpload, which reports them properly.
func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(validation.MaxUploadSize); err != nil {
			return "", nil, errors.NewValidation("upload", "malformed multipart form or payload too large")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, errors.NewValidation("upload", `multipart form has no "file" field`)
		}
		defer file.Close()

		name, err := validation.SanitizeFilename(header.Filename)
		if err != nil {
			return "", nil, err
		}
		data, err := io.ReadAll(io.LimitReader(file, validation.MaxUploadSize+1))
		if err != nil {
			return "", nil, errors.NewIO("read", name, err)
		}
		return name, data, nil
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.docx"
	} else {
		var err error
		if name, err = validation.SanitizeFilename(name); err != nil {
			return "", nil, err
		}
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, validation.MaxUploadSize+1))
	if err != nil {
		return "", nil, errors.NewIO("read", name, err)
	}
	return name, data, nil
}

// runJob converts data and records the outcome on the job. Lookups go
// digest, then rendering cache, then store; only a miss on both parses the
// container.
func (s *Server) runJob(id, source string, data []byte) {
	start := time.Now()
	logging.ConversionStarted(s.logger, source, int64(len(data)))
	s.jobs.Update(id, func(j *Job) { j.Status = JobStatusRunning })

	digest := cas.Sum(data)

	if r, ok := s.cache.Get(digest); ok {
		s.completeJob(id, source, digest, r.Markdown, true, start)
		return
	}

	if s.store != nil {
		if conv, err := s.store.Get(context.Background(), digest); err == nil {
			s.cache.Put(digest, cache.Rendering{SourceName: conv.SourceName, Markdown: conv.Markdown})
			s.completeJob(id, source, digest, conv.Markdown, true, start)
			return
		}
	}

	s.hub.Broadcast(ProgressMessage{JobID: id, Stage: StageParsing, Detail: source})
	f, err := docx.OpenBytes(data, source, docx.Options{Logger: s.logger})
	if err != nil {
		s.failJob(id, source, err)
		return
	}
	document, err := f.Document()
	if err != nil {
		s.failJob(id, source, err)
		return
	}

	s.hub.Broadcast(ProgressMessage{JobID: id, Stage: StageLinearizing, Detail: source})
	markdown, err := linearize.Linearize(document, linearize.Options{
		Styles:    f.Styles(),
		Numbering: f.Numbering(),
		Comments:  f.Comments(),
		Logger:    s.logger,
	})
	if err != nil {
		s.failJob(id, source, err)
		return
	}

	s.cache.Put(digest, cache.Rendering{SourceName: source, Markdown: markdown})
	if s.store != nil {
		conv := &store.Conversion{Hash: digest, SourceName: source, Markdown: markdown}
		if err := s.store.Put(context.Background(), conv); err != nil {
			s.logger.Warn("persisting conversion failed", "source", source, "error", err)
		}
	}

	s.completeJob(id, source, digest, markdown, false, start)
}

func (s *Server) completeJob(id, source, digest, markdown string, cached bool, start time.Time) {
	s.jobs.Update(id, func(j *Job) {
		j.Status = JobStatusCompleted
		j.Result = &JobResult{Markdown: markdown, Hash: digest, Cached: cached}
	})
	s.hub.Broadcast(ProgressMessage{JobID: id, Stage: StageCompleted, Detail: source})
	logging.ConversionCompleted(s.logger, source, time.Since(start), len(markdown))
}

func (s *Server) failJob(id, source string, err error) {
	s.jobs.Update(id, func(j *Job) {
		j.Status = JobStatusFailed
		j.Error = err.Error()
	})
	s.hub.Broadcast(ProgressMessage{JobID: id, Stage: StageFailed, Detail: err.Error()})
	logging.ConversionFailed(s.logger, source, err)
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	response := APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func respondList(w http.ResponseWriter, status int, data interface{}, total int) {
	response := APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Total:     total,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Meta: &APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
