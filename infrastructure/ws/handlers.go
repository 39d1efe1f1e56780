package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "chat-broker/errors"

	"chat-broker/domain"
	"chat-broker/services"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

// Handlers serves the JSON account/history/search surface. Templating and
// page rendering are out of scope; clients consume these directly.
type Handlers struct {
	log  *slog.Logger
	auth services.IAuthService
	chat services.IChatService
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type profileResponse struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Bio      string `json:"bio"`
}

type updateProfileRequest struct {
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

type messageResponse struct {
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := h.auth.Register(req.Username, req.Password)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: string(token)})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: string(token)})
}

func (h *Handlers) profile(w http.ResponseWriter, r *http.Request) {
	username, err := h.bearerUsername(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	user, err := h.auth.Profile(username)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Username: user.Username, Name: user.Name, Bio: user.Bio})
}

func (h *Handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	username, err := h.bearerUsername(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.auth.UpdateProfile(username, req.Name, req.Bio); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// history exposes a room's log over REST; the live path replays it on
// join through the websocket instead.
func (h *Handlers) history(w http.ResponseWriter, r *http.Request) {
	if _, err := h.bearerUsername(r); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	room := domain.RoomID(mux.Vars(r)["room"])
	messages, err := h.chat.History(r.Context(), room)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(messages, func(msg domain.Message, _ int) messageResponse {
		return messageResponse{Username: msg.Sender, Message: msg.Body, Timestamp: msg.At}
	}))
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	if _, err := h.bearerUsername(r); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	hits, err := h.chat.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (h *Handlers) bearerUsername(r *http.Request) (string, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		return "", apperrors.ErrUnauthenticated
	}
	return h.auth.ResolveToken(token)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidCredentials), errors.Is(err, apperrors.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrInvalidPassword):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
