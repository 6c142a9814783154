package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"dutyflow/internal/duty/models"
	"dutyflow/internal/evidence"
	"dutyflow/internal/platform/middleware"
	id "dutyflow/pkg/domain"
	dErrors "dutyflow/pkg/domain-errors"
	"dutyflow/pkg/platform/httputil"
	"dutyflow/pkg/requestcontext"
)

const (
	evidenceField = "evidence"
	commentsField = "comments"

	defaultMaxUpload = 10 << 20
	// multipartMemory bounds the in-memory part of a parsed form; larger files spill to disk.
	multipartMemory = 4 << 20
	multipartSlack  = 64 << 10
)

// Service defines the duty operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, actor models.Actor, req models.CreateDutyRequest) (*models.Duty, error)
	Complete(ctx context.Context, actor models.Actor, dutyID id.DutyID, file evidence.File, comment string) (*models.Duty, error)
	Approve(ctx context.Context, actor models.Actor, dutyID id.DutyID) (*models.Duty, error)
	Reject(ctx context.Context, actor models.Actor, dutyID id.DutyID, reason string) (*models.Duty, error)
	ListForUser(ctx context.Context, userID id.UserID) ([]*models.Duty, error)
	GetWithHistory(ctx context.Context, dutyID id.DutyID) (*models.DutyWithHistory, error)
}

// Handler serves the duty lifecycle endpoints.
type Handler struct {
	duties    Service
	logger    *slog.Logger
	maxUpload int64
}

type Option func(*Handler)

// WithMaxUpload bounds the evidence file accepted by the complete endpoint.
func WithMaxUpload(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

func New(duties Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{duties: duties, logger: logger, maxUpload: defaultMaxUpload}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the routes on an already authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/duties", h.handleCreate)
	r.Post("/duties/{id}/complete", h.handleComplete)
	r.Post("/duties/{id}/approve", h.handleApprove)
	r.Post("/duties/{id}/reject", h.handleReject)
	r.Get("/duties/user/{userId}", h.handleListForUser)
	r.Get("/duties/{id}/history", h.handleHistory)
}

func actorFrom(ctx context.Context) models.Actor {
	c := requestcontext.Principal(ctx)
	return models.Actor{ID: c.UserID, Name: c.Name, Admin: c.Admin}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateDutyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	in, err := req.ToModel(r.URL.Query().Get("userId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.duties.Create(ctx, actorFrom(ctx), in)
	if err != nil {
		h.fail(ctx, w, "create duty", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toDutyResponse(d))
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dutyID, err := id.ParseDutyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartSlack)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "evidence file is too large"))
			return
		}
		h.logger.WarnContext(ctx, "invalid multipart body",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request must be multipart/form-data"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, header, err := r.FormFile(evidenceField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "evidence file is required"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid evidence file"))
		return
	}
	defer f.Close()

	file := evidence.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        f,
	}
	d, err := h.duties.Complete(ctx, actorFrom(ctx), dutyID, file, strings.TrimSpace(r.FormValue(commentsField)))
	if err != nil {
		h.fail(ctx, w, "complete duty", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDutyResponse(d))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dutyID, err := id.ParseDutyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.duties.Approve(ctx, actorFrom(ctx), dutyID)
	if err != nil {
		h.fail(ctx, w, "approve duty", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDutyResponse(d))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	dutyID, err := id.ParseDutyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RejectDutyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	d, err := h.duties.Reject(ctx, actorFrom(ctx), dutyID, req.Comments)
	if err != nil {
		h.fail(ctx, w, "reject duty", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDutyResponse(d))
}

func (h *Handler) handleListForUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "userId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.duties.ListForUser(ctx, userID)
	if err != nil {
		h.fail(ctx, w, "list duties", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDutyListResponse(list))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dutyID, err := id.ParseDutyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.duties.GetWithHistory(ctx, dutyID)
	if err != nil {
		h.fail(ctx, w, "get duty history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHistoryResponse(result))
}

// fail writes err and logs server-side failures.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeDependencyFailure, dErrors.CodeInternal, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, "failed to "+op,
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
