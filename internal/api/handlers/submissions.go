package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/codedrill/codedrill/internal/domain"
	"github.com/codedrill/codedrill/internal/judge"
)

// JudgeService is the intake surface of the judge pipeline
type JudgeService interface {
	Submit(ctx context.Context, userID, problemID uuid.UUID, language, code string) (*domain.Submission, error)
	Run(ctx context.Context, problemID uuid.UUID, language, code string) (*judge.RunOutcome, error)
}

// SubmissionReader reads persisted submissions
type SubmissionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Submission, error)
	ListByProblem(ctx context.Context, problemID uuid.UUID, limit, offset int) ([]*domain.Submission, error)
}

// SubmissionHandler handles submission endpoints
type SubmissionHandler struct {
	judge       JudgeService
	submissions SubmissionReader
}

// NewSubmissionHandler creates a new submission handler
func NewSubmissionHandler(judgeService JudgeService, submissions SubmissionReader) *SubmissionHandler {
	return &SubmissionHandler{judge: judgeService, submissions: submissions}
}

// CreateSubmissionRequest is the request body for submitting code
type CreateSubmissionRequest struct {
	UserID    string `json:"user_id" validate:"required,uuid4"`
	ProblemID string `json:"problem_id" validate:"required,uuid4"`
	Language  string `json:"language" validate:"required"`
	Code      string `json:"code" validate:"required"`
}

// SubmissionResponse represents a submission in API responses
type SubmissionResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	ProblemID       string `json:"problem_id"`
	Language        string `json:"language"`
	Status          string `json:"status"`
	TestCasesPassed int    `json:"test_cases_passed"`
	TotalTestCases  int    `json:"total_test_cases"`
	RuntimeMs       *int   `json:"runtime_ms,omitempty"`
	MemoryKB        *int   `json:"memory_kb,omitempty"`
	Points          int    `json:"points"`
	SubmittedAt     string `json:"submitted_at"`
	JudgedAt        string `json:"judged_at,omitempty"`
}

func toSubmissionResponse(sub *domain.Submission) SubmissionResponse {
	resp := SubmissionResponse{
		ID:              sub.ID.String(),
		UserID:          sub.UserID.String(),
		ProblemID:       sub.ProblemID.String(),
		Language:        sub.Language,
		Status:          sub.Status.String(),
		TestCasesPassed: sub.TestCasesPassed,
		TotalTestCases:  sub.TotalTestCases,
		RuntimeMs:       sub.RuntimeMs,
		MemoryKB:        sub.MemoryKB,
		Points:          sub.Points,
		SubmittedAt:     sub.SubmittedAt.UTC().Format(time.RFC3339),
	}
	if sub.JudgedAt != nil {
		resp.JudgedAt = sub.JudgedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Create accepts a new submission for asynchronous judging
func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		BadRequest(w, r, validationMessage(err))
		return
	}

	userID, _ := uuid.Parse(req.UserID)
	problemID, _ := uuid.Parse(req.ProblemID)

	sub, err := h.judge.Submit(r.Context(), userID, problemID, req.Language, req.Code)
	if err != nil {
		DomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toSubmissionResponse(sub))
}

// Get returns one submission by id
func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, r, "invalid submission id")
		return
	}

	sub, err := h.submissions.GetByID(r.Context(), id)
	if err != nil {
		DomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

// ListByUser returns a user's submissions, most recent first
func (h *SubmissionHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, r, "invalid user id")
		return
	}

	limit, offset := pagination(r)
	subs, err := h.submissions.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		DomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toSubmissionList(subs))
}

// ListByProblem returns a problem's submissions, most recent first
func (h *SubmissionHandler) ListByProblem(w http.ResponseWriter, r *http.Request) {
	problemID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, r, "invalid problem id")
		return
	}

	limit, offset := pagination(r)
	subs, err := h.submissions.ListByProblem(r.Context(), problemID, limit, offset)
	if err != nil {
		DomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toSubmissionList(subs))
}

// RunRequest is the request body for a dry run against sample cases
type RunRequest struct {
	ProblemID string `json:"problem_id" validate:"required,uuid4"`
	Language  string `json:"language" validate:"required"`
	Code      string `json:"code" validate:"required"`
}

// RunCaseResponse is one sample case outcome
type RunCaseResponse struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	ActualOutput   string `json:"actual_output"`
	Stderr         string `json:"stderr,omitempty"`
	Passed         bool   `json:"passed"`
}

// RunResponse is the outcome of a dry run
type RunResponse struct {
	Status          string            `json:"status"`
	TestCasesPassed int               `json:"test_cases_passed"`
	TotalTestCases  int               `json:"total_test_cases"`
	RuntimeMs       int               `json:"runtime_ms"`
	MemoryKB        int               `json:"memory_kb"`
	Cases           []RunCaseResponse `json:"cases"`
}

// Run executes code against a problem's sample cases without persisting
func (h *SubmissionHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		BadRequest(w, r, validationMessage(err))
		return
	}

	problemID, _ := uuid.Parse(req.ProblemID)

	outcome, err := h.judge.Run(r.Context(), problemID, req.Language, req.Code)
	if err != nil {
		DomainError(w, r, err)
		return
	}

	resp := RunResponse{
		Status:          outcome.Status.String(),
		TestCasesPassed: outcome.TestCasesPassed,
		TotalTestCases:  outcome.TotalTestCases,
		RuntimeMs:       outcome.RuntimeMs,
		MemoryKB:        outcome.MemoryKB,
		Cases:           make([]RunCaseResponse, 0, len(outcome.Cases)),
	}
	for _, c := range outcome.Cases {
		resp.Cases = append(resp.Cases, RunCaseResponse{
			Input:          c.Input,
			ExpectedOutput: c.ExpectedOutput,
			ActualOutput:   c.ActualOutput,
			Stderr:         c.Stderr,
			Passed:         c.Passed,
		})
	}

	WriteJSON(w, http.StatusOK, resp)
}

func toSubmissionList(subs []*domain.Submission) map[string]any {
	items := make([]SubmissionResponse, 0, len(subs))
	for _, sub := range subs {
		items = append(items, toSubmissionResponse(sub))
	}
	return map[string]any{"submissions": items, "count": len(items)}
}

// pagination parses limit/offset query parameters with sane bounds
func pagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
