package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/codedrill/codedrill/internal/domain"
)

// UserStore is the persistence surface for user endpoints
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	SolvedProblemIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// UserHandler handles user endpoints
type UserHandler struct {
	users UserStore
}

// NewUserHandler creates a new user handler
func NewUserHandler(users UserStore) *UserHandler {
	return &UserHandler{users: users}
}

// CreateUserRequest is the request body for registering a user
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email    string `json:"email" validate:"required,email"`
}

// StreakResponse mirrors a user's daily solve streak
type StreakResponse struct {
	Current        int    `json:"current"`
	Longest        int    `json:"longest"`
	LastActiveDate string `json:"last_active_date,omitempty"`
}

// UserStatsResponse mirrors a user's cumulative statistics
type UserStatsResponse struct {
	TotalSubmissions    int            `json:"total_submissions"`
	AcceptedSubmissions int            `json:"accepted_submissions"`
	Accuracy            int            `json:"accuracy"`
	SolvedCount         int            `json:"solved_count"`
	SolvedEasy          int            `json:"solved_easy"`
	SolvedMedium        int            `json:"solved_medium"`
	SolvedHard          int            `json:"solved_hard"`
	AttemptedCount      int            `json:"attempted_count"`
	Points              int            `json:"points"`
	Level               int            `json:"level"`
	Streak              StreakResponse `json:"streak"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID        string            `json:"id"`
	Username  string            `json:"username"`
	Email     string            `json:"email"`
	Stats     UserStatsResponse `json:"stats"`
	CreatedAt string            `json:"created_at"`
}

func toUserResponse(u *domain.User) UserResponse {
	stats := UserStatsResponse{
		TotalSubmissions:    u.Stats.TotalSubmissions,
		AcceptedSubmissions: u.Stats.AcceptedSubmissions,
		Accuracy:            u.Stats.Accuracy,
		SolvedCount:         u.Stats.SolvedCount,
		SolvedEasy:          u.Stats.SolvedEasy,
		SolvedMedium:        u.Stats.SolvedMedium,
		SolvedHard:          u.Stats.SolvedHard,
		AttemptedCount:      u.Stats.AttemptedCount,
		Points:              u.Stats.Points,
		Level:               u.Stats.Level(),
		Streak: StreakResponse{
			Current: u.Stats.Streak.Current,
			Longest: u.Stats.Streak.Longest,
		},
	}
	if u.Stats.Streak.LastActiveDate != nil {
		stats.Streak.LastActiveDate = u.Stats.Streak.LastActiveDate.UTC().Format("2006-01-02")
	}
	return UserResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		Stats:     stats,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Create registers a new user
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		BadRequest(w, r, validationMessage(err))
		return
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:        uuid.New(),
		Username:  req.Username,
		Email:     req.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.users.Create(r.Context(), user); err != nil {
		DomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

// Get returns one user with statistics
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, r, "invalid user id")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		DomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// Progress returns a user's statistics plus the solved problem set
func (h *UserHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, r, "invalid user id")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		DomainError(w, r, err)
		return
	}

	solved, err := h.users.SolvedProblemIDs(r.Context(), id)
	if err != nil {
		DomainError(w, r, err)
		return
	}

	solvedIDs := make([]string, 0, len(solved))
	for _, pid := range solved {
		solvedIDs = append(solvedIDs, pid.String())
	}

	resp := toUserResponse(user)
	WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":         resp.ID,
		"stats":           resp.Stats,
		"solved_problems": solvedIDs,
	})
}
