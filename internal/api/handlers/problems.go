package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/codedrill/codedrill/internal/domain"
)

// ProblemStore is the persistence surface for problem endpoints
type ProblemStore interface {
	Create(ctx context.Context, problem *domain.Problem) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Problem, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Problem, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	RecomputeStats(ctx context.Context, id uuid.UUID) error
}

// ProblemHandler handles problem endpoints
type ProblemHandler struct {
	problems ProblemStore
}

// NewProblemHandler creates a new problem handler
func NewProblemHandler(problems ProblemStore) *ProblemHandler {
	return &ProblemHandler{problems: problems}
}

// TestCaseRequest is one test case in a problem creation request
type TestCaseRequest struct {
	Input          string `json:"input" validate:"required"`
	ExpectedOutput string `json:"expected_output" validate:"required"`
	Hidden         bool   `json:"hidden"`
	Weight         int    `json:"weight"`
}

// CreateProblemRequest is the request body for creating a problem
type CreateProblemRequest struct {
	Slug           string            `json:"slug" validate:"required,max=100"`
	Title          string            `json:"title" validate:"required,max=200"`
	Statement      string            `json:"statement" validate:"required"`
	Difficulty     string            `json:"difficulty" validate:"required,oneof=easy medium hard"`
	Category       string            `json:"category"`
	RuntimeLimitMs int               `json:"runtime_limit_ms" validate:"omitempty,min=100,max=60000"`
	MemoryLimitKB  int               `json:"memory_limit_kb" validate:"omitempty,min=1024"`
	TestCases      []TestCaseRequest `json:"test_cases" validate:"required,min=1,dive"`
}

// ProblemStatsResponse mirrors a problem's denormalized aggregates
type ProblemStatsResponse struct {
	TotalSubmissions    int     `json:"total_submissions"`
	AcceptedSubmissions int     `json:"accepted_submissions"`
	AcceptanceRate      int     `json:"acceptance_rate"`
	SolvedBy            int     `json:"solved_by"`
	AvgRuntimeMs        float64 `json:"avg_runtime_ms"`
	AvgMemoryKB         float64 `json:"avg_memory_kb"`
}

// SampleCaseResponse is a visible test case. Hidden cases never appear in
// API responses.
type SampleCaseResponse struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// ProblemResponse represents a problem in API responses
type ProblemResponse struct {
	ID             string               `json:"id"`
	Slug           string               `json:"slug"`
	Title          string               `json:"title"`
	Statement      string               `json:"statement"`
	Difficulty     string               `json:"difficulty"`
	Category       string               `json:"category,omitempty"`
	RuntimeLimitMs int                  `json:"runtime_limit_ms"`
	MemoryLimitKB  int                  `json:"memory_limit_kb"`
	IsActive       bool                 `json:"is_active"`
	SampleCases    []SampleCaseResponse `json:"sample_cases"`
	Stats          ProblemStatsResponse `json:"stats"`
	CreatedAt      string               `json:"created_at"`
}

func toProblemResponse(p *domain.Problem) ProblemResponse {
	resp := ProblemResponse{
		ID:             p.ID.String(),
		Slug:           p.Slug,
		Title:          p.Title,
		Statement:      p.Statement,
		Difficulty:     string(p.Difficulty),
		Category:       p.Category,
		RuntimeLimitMs: p.RuntimeLimitMs,
		MemoryLimitKB:  p.MemoryLimitKB,
		IsActive:       p.IsActive,
		SampleCases:    []SampleCaseResponse{},
		Stats: ProblemStatsResponse{
			TotalSubmissions:    p.Stats.TotalSubmissions,
			AcceptedSubmissions: p.Stats.AcceptedSubmissions,
			AcceptanceRate:      p.Stats.AcceptanceRate,
			SolvedBy:            p.Stats.SolvedBy,
			AvgRuntimeMs:        p.Stats.AvgRuntimeMs,
			AvgMemoryKB:         p.Stats.AvgMemoryKB,
		},
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, tc := range p.SampleTestCases() {
		resp.SampleCases = append(resp.SampleCases, SampleCaseResponse{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}
	return resp
}

// Create registers a new problem with its test cases
func (h *ProblemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProblemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		BadRequest(w, r, validationMessage(err))
		return
	}

	now := time.Now().UTC()
	problem := &domain.Problem{
		ID:             uuid.New(),
		Slug:           req.Slug,
		Title:          req.Title,
		Statement:      req.Statement,
		Difficulty:     domain.Difficulty(req.Difficulty),
		Category:       req.Category,
		IsActive:       true,
		RuntimeLimitMs: req.RuntimeLimitMs,
		MemoryLimitKB:  req.MemoryLimitKB,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if problem.RuntimeLimitMs == 0 {
		problem.RuntimeLimitMs = 5000
	}
	if problem.MemoryLimitKB == 0 {
		problem.MemoryLimitKB = 256 * 1024
	}

	for i, tc := range req.TestCases {
		weight := tc.Weight
		if weight <= 0 {
			weight = 1
		}
		problem.TestCases = append(problem.TestCases, domain.TestCase{
			ID:             uuid.New(),
			ProblemID:      problem.ID,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Hidden:         tc.Hidden,
			Weight:         weight,
			SortOrder:      i,
		})
	}

	if err := h.problems.Create(r.Context(), problem); err != nil {
		DomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toProblemResponse(problem))
}

// Get returns one problem with its sample cases and statistics
func (h *ProblemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, r, "invalid problem id")
		return
	}

	problem, err := h.problems.GetByID(r.Context(), id)
	if err != nil {
		DomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toProblemResponse(problem))
}

// List returns active problems
func (h *ProblemHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	problems, err := h.problems.List(r.Context(), limit, offset)
	if err != nil {
		DomainError(w, r, err)
		return
	}

	items := make([]ProblemResponse, 0, len(problems))
	for _, p := range problems {
		items = append(items, toProblemResponse(p))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"problems": items, "count": len(items)})
}

// Deactivate hides a problem from listings and blocks new submissions
func (h *ProblemHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, r, "invalid problem id")
		return
	}

	if err := h.problems.Deactivate(r.Context(), id); err != nil {
		DomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Recompute rebuilds a problem's aggregates from the submission records.
// The aggregates are a cache; this is the reconciliation path for when a
// statistics update was lost after a verdict landed.
func (h *ProblemHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, r, "invalid problem id")
		return
	}

	if err := h.problems.RecomputeStats(r.Context(), id); err != nil {
		DomainError(w, r, err)
		return
	}

	problem, err := h.problems.GetByID(r.Context(), id)
	if err != nil {
		DomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toProblemResponse(problem))
}
