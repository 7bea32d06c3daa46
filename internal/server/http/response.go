package httpserver

import (
	"time"

	"github.com/helixir/affiliation-harvester/internal/domain"
	"github.com/helixir/affiliation-harvester/internal/harvest"
)

// Harvest response types for JSON serialization.

type startHarvestResponse struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message"`
}

type runStatusResponse struct {
	RunID     string                 `json:"run_id"`
	Status    string                 `json:"status"`
	Request   requestResponse        `json:"request"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Summary   *resultSummaryResponse `json:"summary,omitempty"`
}

type requestResponse struct {
	Affiliations []affiliationResponse `json:"affiliations"`
	YearFloor    int                   `json:"year_floor,omitempty"`
	DumpDir      string                `json:"dump_dir,omitempty"`
}

type affiliationResponse struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id"`
}

// resultSummaryResponse carries the counts and the failed partitions of a
// finished run so clients can retry exactly the units that failed.
type resultSummaryResponse struct {
	TotalResults    int      `json:"total_results"`
	Works           int      `json:"works"`
	Authors         int      `json:"authors"`
	FailedOffsets   []int    `json:"failed_offsets,omitempty"`
	FailedAuthorIDs []string `json:"failed_author_ids,omitempty"`
	Duration        string   `json:"duration,omitempty"`
}

type runSummaryResponse struct {
	RunID        string    `json:"run_id"`
	Status       string    `json:"status"`
	Affiliations int       `json:"affiliations"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type listRunsResponse struct {
	Runs  []runSummaryResponse `json:"runs"`
	Total int                  `json:"total"`
}

type harvestResultResponse struct {
	RunID         string                  `json:"run_id"`
	Status        string                  `json:"status"`
	Works         []workResponse          `json:"works"`
	Authors       []authorProfileResponse `json:"authors"`
	WorkAuthors   map[string][]string     `json:"work_authors"`
	AuthorWorks   map[string][]string     `json:"author_works"`
	TotalResults  int                     `json:"total_results"`
	FailedPages   []pageFailureResponse   `json:"failed_pages,omitempty"`
	FailedAuthors []authorFailureResponse `json:"failed_authors,omitempty"`
	Duration      string                  `json:"duration,omitempty"`
}

type workResponse struct {
	WorkID       string            `json:"work_id"`
	Fields       map[string]string `json:"fields"`
	AuthorNames  []string          `json:"author_names"`
	CitedByCount *int              `json:"cited_by_count,omitempty"`
}

type authorProfileResponse struct {
	AuthorID    string               `json:"author_id"`
	IndexedName string               `json:"indexed_name"`
	Surname     string               `json:"surname"`
	GivenName   string               `json:"given_name"`
	Departments []departmentResponse `json:"departments"`
}

type departmentResponse struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Parent string `json:"parent,omitempty"`
}

type pageFailureResponse struct {
	Offset int    `json:"offset"`
	Reason string `json:"reason"`
}

type authorFailureResponse struct {
	AuthorID string `json:"author_id"`
	Reason   string `json:"reason"`
}

// Converter functions

func runToStatusResponse(run harvest.Run) runStatusResponse {
	resp := runStatusResponse{
		RunID:     run.ID,
		Status:    string(run.Status),
		Request:   requestToResponse(run.Request),
		Error:     run.Error,
		CreatedAt: run.CreatedAt,
		UpdatedAt: run.UpdatedAt,
	}
	if run.Result != nil {
		resp.Summary = resultToSummary(run.Result)
	}
	return resp
}

func requestToResponse(req harvest.Request) requestResponse {
	affiliations := make([]affiliationResponse, len(req.Affiliations))
	for i, a := range req.Affiliations {
		affiliations[i] = affiliationResponse{Name: a.Name, ID: a.ID}
	}
	return requestResponse{
		Affiliations: affiliations,
		YearFloor:    req.YearFloor,
		DumpDir:      req.DumpDir,
	}
}

func resultToSummary(r *domain.HarvestResult) *resultSummaryResponse {
	resp := &resultSummaryResponse{
		TotalResults:    r.TotalResults,
		Works:           len(r.Works),
		Authors:         len(r.Authors),
		FailedOffsets:   r.FailedOffsets(),
		FailedAuthorIDs: r.FailedAuthorIDs(),
	}
	if r.Duration > 0 {
		resp.Duration = r.Duration.String()
	}
	return resp
}

func runToSummary(run harvest.Run) runSummaryResponse {
	return runSummaryResponse{
		RunID:        run.ID,
		Status:       string(run.Status),
		Affiliations: len(run.Request.Affiliations),
		CreatedAt:    run.CreatedAt,
		UpdatedAt:    run.UpdatedAt,
	}
}

func resultToResponse(run harvest.Run, r *domain.HarvestResult) harvestResultResponse {
	works := make([]workResponse, len(r.Works))
	for i, w := range r.Works {
		works[i] = domainWorkToResponse(w)
	}
	authors := make([]authorProfileResponse, len(r.Authors))
	for i, a := range r.Authors {
		authors[i] = domainAuthorToResponse(a)
	}
	failedPages := make([]pageFailureResponse, len(r.FailedPages))
	for i, f := range r.FailedPages {
		failedPages[i] = pageFailureResponse{Offset: f.Offset, Reason: f.Reason}
	}
	failedAuthors := make([]authorFailureResponse, len(r.FailedAuthors))
	for i, f := range r.FailedAuthors {
		failedAuthors[i] = authorFailureResponse{AuthorID: f.AuthorID, Reason: f.Reason}
	}

	resp := harvestResultResponse{
		RunID:         run.ID,
		Status:        string(run.Status),
		Works:         works,
		Authors:       authors,
		WorkAuthors:   r.WorkAuthors,
		AuthorWorks:   r.AuthorWorks,
		TotalResults:  r.TotalResults,
		FailedPages:   failedPages,
		FailedAuthors: failedAuthors,
	}
	if r.Duration > 0 {
		resp.Duration = r.Duration.String()
	}
	return resp
}

func domainWorkToResponse(w domain.WorkRecord) workResponse {
	return workResponse{
		WorkID:       w.WorkID,
		Fields:       w.Fields,
		AuthorNames:  w.AuthorNames,
		CitedByCount: w.CitedByCount,
	}
}

func domainAuthorToResponse(a domain.AuthorProfile) authorProfileResponse {
	departments := make([]departmentResponse, len(a.Departments))
	for i, d := range a.Departments {
		departments[i] = departmentResponse{Name: d.Name, Kind: d.Kind, Parent: d.Parent}
	}
	return authorProfileResponse{
		AuthorID:    a.AuthorID,
		IndexedName: a.IndexedName,
		Surname:     a.Surname,
		GivenName:   a.GivenName,
		Departments: departments,
	}
}
