package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/affiliation-harvester/internal/domain"
	"github.com/helixir/affiliation-harvester/internal/harvest"
)

// maxRequestBodySize bounds harvest request bodies at 1 MB.
const maxRequestBodySize = 1 << 20

// validate checks harvest request bodies. Field names in validation messages
// come from the json tags.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// startHarvestRequest is the JSON request body for starting a harvest run.
type startHarvestRequest struct {
	Affiliations []affiliationRequest `json:"affiliations" validate:"required,min=1,max=100,dive"`
	YearFloor    int                  `json:"year_floor" validate:"omitempty,gte=0"`
	DumpDir      string               `json:"dump_dir"`
}

type affiliationRequest struct {
	Name string `json:"name"`
	ID   string `json:"id" validate:"required"`
}

// startHarvest handles POST /v1/harvests.
// It registers a new run and starts the harvest in a background goroutine.
func (s *Server) startHarvest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req startHarvestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	for i := range req.Affiliations {
		req.Affiliations[i].Name = strings.TrimSpace(req.Affiliations[i].Name)
		req.Affiliations[i].ID = strings.TrimSpace(req.Affiliations[i].ID)
	}

	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	entries := make([]domain.AffiliationEntry, len(req.Affiliations))
	for i, a := range req.Affiliations {
		entries[i] = domain.AffiliationEntry{Name: a.Name, ID: a.ID}
	}

	run := s.runs.Create(harvest.Request{
		Affiliations: entries,
		YearFloor:    req.YearFloor,
		DumpDir:      req.DumpDir,
	})

	go s.executeHarvest(run.ID, run.Request)

	writeJSON(w, http.StatusAccepted, startHarvestResponse{
		RunID:     run.ID,
		Status:    string(run.Status),
		CreatedAt: run.CreatedAt,
		Message:   "harvest run accepted",
	})
}

// executeHarvest runs one harvest to completion and records the terminal
// state in the registry. The run context outlives the originating request.
func (s *Server) executeHarvest(runID string, req harvest.Request) {
	result, err := s.harvester.Run(s.runCtx, runID, req)
	if err != nil {
		s.runs.Fail(runID, err)
		return
	}
	s.runs.Complete(runID, result)
}

// getHarvestStatus handles GET /v1/harvests/{runID}.
// It returns the current status of a harvest run, including the result
// summary and failed partitions once the run has finished.
func (s *Server) getHarvestStatus(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, chi.URLParam(r, "runID"))
	if !ok {
		return
	}

	run, ok := s.runs.Get(runID)
	if !ok {
		writeDomainError(w, domain.NewNotFoundError("harvest run", runID))
		return
	}

	writeJSON(w, http.StatusOK, runToStatusResponse(run))
}

// getHarvestResult handles GET /v1/harvests/{runID}/result.
// It returns the full correlated result document. The result exists only
// after the run reached completed or partial.
func (s *Server) getHarvestResult(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, chi.URLParam(r, "runID"))
	if !ok {
		return
	}

	run, ok := s.runs.Get(runID)
	if !ok {
		writeDomainError(w, domain.NewNotFoundError("harvest run", runID))
		return
	}
	if run.Result == nil {
		writeDomainError(w, domain.NewNotFoundError("harvest result", runID))
		return
	}

	writeJSON(w, http.StatusOK, resultToResponse(run, run.Result))
}

// listHarvests handles GET /v1/harvests.
// It returns run summaries, newest first.
func (s *Server) listHarvests(w http.ResponseWriter, r *http.Request) {
	runs := s.runs.List()

	summaries := make([]runSummaryResponse, len(runs))
	for i, run := range runs {
		summaries[i] = runToSummary(run)
	}

	writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:  summaries,
		Total: len(summaries),
	})
}

// writeDomainError maps domain errors to appropriate HTTP status codes and
// writes a JSON error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrPrimingFetch):
		writeError(w, http.StatusBadGateway, "upstream priming fetch failed")
	case errors.Is(err, domain.ErrTransport):
		writeError(w, http.StatusBadGateway, "upstream request failed")
	case errors.Is(err, domain.ErrMalformedDocument):
		writeError(w, http.StatusBadGateway, "upstream returned a malformed document")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// validationMessage renders the first field violation as a client-facing
// message, e.g. "affiliations[0].id is required".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}

	fe := verrs[0]
	name := fe.Namespace()
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must have at most %s entries", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}

// parseRunID parses a run ID from a path segment, writing a 400 error
// response if it is not a valid UUID. The parse error details are not
// included to avoid echoing potentially malicious input.
func parseRunID(w http.ResponseWriter, s string) (string, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "run_id must be a valid UUID")
		return "", false
	}
	return id.String(), true
}
