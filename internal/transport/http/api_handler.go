package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"cybershield-progress/internal/domain"
)

var (
	errInvalidPayload     = errors.New("invalid payload")
	errUnsupportedMessage = errors.New("unsupported message type")
)

// AuthService is the account surface exposed over HTTP.
type AuthService interface {
	TokenVerifier
	SignUp(ctx context.Context, email, password, username string) (domain.AuthSession, error)
	SignIn(ctx context.Context, email, password string) (domain.AuthSession, error)
	SignOut(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, email string) error
	IsUsernameAvailable(ctx context.Context, candidate string) (bool, error)
}

// LeaderboardReader returns the ranked board with the caller's own standing.
type LeaderboardReader interface {
	Leaderboard(ctx context.Context, learnerID string) (domain.Leaderboard, error)
}

// APIHandler serves the JSON auth and leaderboard endpoints.
type APIHandler struct {
	auth        AuthService
	leaderboard LeaderboardReader
}

func NewAPIHandler(auth AuthService, leaderboard LeaderboardReader) *APIHandler {
	return &APIHandler{auth: auth, leaderboard: leaderboard}
}

// Register mounts the endpoints on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/signup", h.signUp)
	mux.HandleFunc("POST /auth/signin", h.signIn)
	mux.HandleFunc("POST /auth/signout", h.signOut)
	mux.HandleFunc("POST /auth/reset", h.resetPassword)
	mux.HandleFunc("GET /auth/username", h.usernameAvailable)
	mux.HandleFunc("GET /leaderboard", h.getLeaderboard)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type usernameResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

func (h *APIHandler) signUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.auth.SignUp(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *APIHandler) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.SignOut(r.Context(), bearerToken(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, errorPayload{Message: "Check your email for a password reset link"})
}

func (h *APIHandler) usernameAvailable(w http.ResponseWriter, r *http.Request) {
	candidate := r.URL.Query().Get("candidate")
	ok, err := h.auth.IsUsernameAvailable(r.Context(), candidate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usernameResponse{Username: candidate, Available: ok})
}

// getLeaderboard is public. A valid bearer token adds the caller's own standing.
func (h *APIHandler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	var learnerID string
	if token := bearerToken(r); token != "" {
		identity, err := h.auth.Verify(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		learnerID = identity.LearnerID
	}
	board, err := h.leaderboard.Leaderboard(r.Context(), learnerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: errInvalidPayload.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: verr.Message})
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorPayload{Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorPayload{Message: domain.ErrInvalidToken.Error()})
	case errors.Is(err, domain.ErrUsernameTaken), errors.Is(err, domain.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, errorPayload{Message: err.Error()})
	default:
		log.Printf("api error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{Message: "An unexpected error occurred"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
