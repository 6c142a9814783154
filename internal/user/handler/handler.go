package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dutyflow/internal/platform/middleware"
	"dutyflow/internal/user/models"
	id "dutyflow/pkg/domain"
	dErrors "dutyflow/pkg/domain-errors"
	"dutyflow/pkg/platform/httputil"
	"dutyflow/pkg/requestcontext"
)

// Service defines the user operations exposed over HTTP.
type Service interface {
	Get(ctx context.Context, userID id.UserID) (*models.User, error)
	UpdatePushToken(ctx context.Context, userID id.UserID, token string) error
	UpdateEmail(ctx context.Context, userID id.UserID, email string) (*models.User, error)
}

// Handler serves the caller's own profile.
type Handler struct {
	users  Service
	logger *slog.Logger
}

func New(users Service, logger *slog.Logger) *Handler {
	return &Handler{users: users, logger: logger}
}

// Register mounts the routes on an already authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/users/me", h.handleMe)
	r.Put("/users/me/push-token", h.handleUpdatePushToken)
	r.Put("/users/me/email", h.handleUpdateEmail)
}

type UserResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	PictureURL string    `json:"picture,omitempty"`
	Role       string    `json:"role"`
	HasPush    bool      `json:"hasPushToken"`
	CreatedAt  time.Time `json:"createdAt"`
}

type PushTokenRequest struct {
	PushToken string `json:"pushToken"`
}

func (r *PushTokenRequest) Normalize() {
	r.PushToken = strings.TrimSpace(r.PushToken)
}

type UpdateEmailRequest struct {
	Email string `json:"email"`
}

func (r *UpdateEmailRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *UpdateEmailRequest) Validate() error {
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	return nil
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:         u.ID.String(),
		Name:       u.Name,
		Email:      u.Email,
		PictureURL: u.PictureURL,
		Role:       string(u.Role),
		HasPush:    u.PushToken != "",
		CreatedAt:  u.CreatedAt,
	}
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.users.Get(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to load caller profile",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleUpdatePushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[PushTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.users.UpdatePushToken(ctx, requestcontext.UserID(ctx), req.PushToken); err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeDependencyFailure {
			h.logger.ErrorContext(ctx, "failed to update push token",
				"error", err,
				"request_id", requestID,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[UpdateEmailRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	u, err := h.users.UpdateEmail(ctx, requestcontext.UserID(ctx), req.Email)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeDependencyFailure {
			h.logger.ErrorContext(ctx, "failed to update email",
				"error", err,
				"request_id", requestID,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}
