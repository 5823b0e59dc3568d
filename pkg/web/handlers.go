package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/wdm0006/labeletl/pkg/config"
	"github.com/wdm0006/labeletl/pkg/logging"
	"github.com/wdm0006/labeletl/pkg/pipeline"
)

func (s *Server) pageData(st Status) PageData {
	return PageData{
		Status:     st,
		Input:      s.cfg.Pipeline.Input,
		OutputRoot: s.cfg.Pipeline.OutputRoot,
		Format:     s.cfg.Pipeline.Format,
		Formats:    config.Formats,
	}
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, st Status) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := Page(s.pageData(st)).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render page", "error", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, readyStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRunPage runs the pipeline and renders the outcome into the page.
func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	req, err := parseRunRequest(r)
	if err != nil {
		s.renderPage(w, r, http.StatusBadRequest, Status{Class: "alert-danger", Message: err.Error()})
		return
	}
	res := s.run(r, req)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	s.renderPage(w, r, status, RunStatus(res))
}

// handleAPIRun runs the pipeline and returns the RunResult as JSON.
func (s *Server) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	req, err := parseRunRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.run(r, req)
	if !res.Success {
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) run(r *http.Request, req pipeline.Request) pipeline.RunResult {
	log := logging.WithFields(r.Context(), "format", req.Format)
	log.Info("starting ETL process")
	res := s.runner.Run(r.Context(), req)
	if res.Success {
		log.Info("ETL process completed successfully", "run_id", res.RunID)
	} else {
		log.Error("ETL process failed", "run_id", res.RunID, "error", res.Error)
	}
	return res
}

type badRequest string

func (e badRequest) Error() string { return string(e) }

// parseRunRequest reads the optional format and validate parameters from the
// query string or form. Paths are never taken from a request.
func parseRunRequest(r *http.Request) (pipeline.Request, error) {
	var req pipeline.Request
	if err := r.ParseForm(); err != nil {
		return req, badRequest("invalid form: " + err.Error())
	}
	if f := strings.ToLower(strings.TrimSpace(r.Form.Get("format"))); f != "" {
		if !config.ValidFormat(f) {
			return req, badRequest("unsupported format " + strconv.Quote(f))
		}
		req.Format = f
	}
	if v := strings.TrimSpace(r.Form.Get("validate")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, badRequest("validate must be a boolean")
		}
		req.Validate = &b
	}
	return req, nil
}
