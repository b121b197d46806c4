package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"scanbridge/internal/api"
	"scanbridge/internal/domain"
)

const defaultCamera = "50"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeMessage(w, http.StatusServiceUnavailable, "error", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, envelope{Status: "ok"})
}

func handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(api.Spec)
}

// Scan control

type scanResponse struct {
	Status string `json:"status"`
	*domain.SessionResult
}

func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	camera := defaultCamera
	wait := true
	if err := bindQuery(r, "ip", false, &camera); err != nil {
		writeMessage(w, http.StatusBadRequest, "error", err.Error())
		return
	}
	if err := bindQuery(r, "wait", false, &wait); err != nil {
		writeMessage(w, http.StatusBadRequest, "error", err.Error())
		return
	}

	ctx := s.sessionContext(r)
	if !wait {
		if err := s.scanner.StartScanAsync(ctx, camera); err != nil {
			writeError(w, r, err)
			return
		}
		writeMessage(w, http.StatusAccepted, "ok", "Scan started")
		return
	}

	res, err := s.scanner.StartScan(ctx, camera)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Status: "ok", SessionResult: &res})
}

func (s *Server) handlePauseScan(w http.ResponseWriter, r *http.Request) {
	if err := s.scanner.RequestPause(); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "ok", "Pause requested")
}

func (s *Server) handleStopScan(w http.ResponseWriter, r *http.Request) {
	if err := s.scanner.RequestStop(); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "ok", "Stop requested")
}

type statusResponse struct {
	Status string `json:"status"`
	domain.SessionStatus
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", SessionStatus: s.scanner.Status()})
}

// Artifacts

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	camera := defaultCamera
	var name string
	if err := bindQuery(r, "ip", false, &camera); err != nil {
		writeMessage(w, http.StatusBadRequest, "error", err.Error())
		return
	}
	if err := bindQuery(r, "name", false, &name); err != nil || name == "" {
		writeMessage(w, http.StatusBadRequest, "error", "Missing file name")
		return
	}
	base, err := s.targets.BaseURL(camera)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := s.dir.Download(r.Context(), base, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	serveAttachment(w, name, "application/zip", data)
}

func (s *Server) handleConvertedFile(w http.ResponseWriter, r *http.Request) {
	if s.conv == nil {
		writeMessage(w, http.StatusServiceUnavailable, "error", "conversion service not configured")
		return
	}
	var run, name string
	if err := bindQuery(r, "run", true, &run); err != nil {
		writeMessage(w, http.StatusBadRequest, "error", "run and name are required")
		return
	}
	if err := bindQuery(r, "name", true, &name); err != nil {
		writeMessage(w, http.StatusBadRequest, "error", "run and name are required")
		return
	}
	data, err := s.conv.Download(r.Context(), run, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	serveAttachment(w, name, "application/octet-stream", data)
}

func serveAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Job bridge

type submitRequest struct {
	// CameraIPSuffix is accepted as a string or a number.
	CameraIPSuffix any    `json:"camera_ip_suffix"`
	Workspace      string `json:"workspace"`
	OutDir         string `json:"outdir"`
	ScanIndex      *int   `json:"scan_index"`
}

func (req submitRequest) spec() domain.JobSpec {
	spec := domain.JobSpec{Workspace: req.Workspace, OutDir: req.OutDir, ScanIndex: req.ScanIndex}
	switch v := req.CameraIPSuffix.(type) {
	case string:
		spec.CameraIPSuffix = v
	case float64:
		spec.CameraIPSuffix = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return spec
}

type jobResponse struct {
	Status string      `json:"status"`
	JobID  string      `json:"job_id,omitempty"`
	Job    *domain.Job `json:"job"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: workspace and outdir are required", domain.ErrInvalidSpec))
		return
	}
	job, err := s.bridge.Submit(r.Context(), req.spec())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{Status: "ok", JobID: job.ID, Job: &job})
}

func (s *Server) handleNextJob(w http.ResponseWriter, r *http.Request) {
	var worker string
	if err := bindQuery(r, "worker", false, &worker); err != nil {
		writeMessage(w, http.StatusBadRequest, "error", err.Error())
		return
	}
	job, found, err := s.bridge.ClaimNext(r.Context(), worker)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := jobResponse{Status: "ok"}
	if found {
		resp.Job = &job
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompleteJob(w http.ResponseWriter, r *http.Request) {
	var outcome domain.Outcome
	// An unreadable body reports a failure, as a worker that cannot describe its result has failed.
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		outcome = domain.Outcome{}
	}
	job, err := s.bridge.Complete(r.Context(), chi.URLParam(r, "id"), outcome)
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{Status: "ok", Job: &job})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.bridge.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{Status: "ok", Job: &job})
}

func writeJobError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "error", "job not found")
		return
	}
	writeError(w, r, err)
}

// bindQuery binds a single form-style query parameter into dest, leaving dest
// untouched when an optional parameter is absent.
func bindQuery(r *http.Request, name string, required bool, dest any) error {
	return runtime.BindQueryParameter("form", true, required, name, r.URL.Query(), dest)
}
