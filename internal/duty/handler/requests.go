package handler

import (
	"strings"
	"time"

	"dutyflow/internal/duty/models"
	id "dutyflow/pkg/domain"
	dErrors "dutyflow/pkg/domain-errors"
)

// CreateDutyRequest is the body of POST /duties. The assignee comes from the
// userId query parameter or, failing that, from AssigneeID.
type CreateDutyRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	AssigneeID  string `json:"assigneeId,omitempty"`
}

func (r *CreateDutyRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.DueDate = strings.TrimSpace(r.DueDate)
	r.AssigneeID = strings.TrimSpace(r.AssigneeID)
}

// ToModel resolves the assignee and parses the due date.
func (r *CreateDutyRequest) ToModel(queryUserID string) (models.CreateDutyRequest, error) {
	raw := strings.TrimSpace(queryUserID)
	if raw == "" {
		raw = r.AssigneeID
	}
	if raw == "" {
		return models.CreateDutyRequest{}, dErrors.New(dErrors.CodeValidation, "assignee is required")
	}
	assignee, err := id.ParseUserID(raw)
	if err != nil {
		return models.CreateDutyRequest{}, err
	}
	due, err := models.ParseDueDate(r.DueDate)
	if err != nil {
		return models.CreateDutyRequest{}, err
	}
	return models.CreateDutyRequest{
		Title:       r.Title,
		Description: r.Description,
		DueDate:     due,
		AssigneeID:  assignee,
	}, nil
}

// RejectDutyRequest is the body of POST /duties/{id}/reject.
type RejectDutyRequest struct {
	Comments string `json:"comments"`
}

func (r *RejectDutyRequest) Normalize() {
	r.Comments = strings.TrimSpace(r.Comments)
}

type DutyResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	DueDate     string    `json:"dueDate,omitempty"`
	EvidenceURL string    `json:"evidenceUrl,omitempty"`
	AssignedTo  string    `json:"assignedTo"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type HistoryEntryResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	ActorID   string    `json:"actorId"`
	ActorName string    `json:"actorName"`
	Comments  string    `json:"comments,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type DutyHistoryResponse struct {
	DutyResponse
	History    []HistoryEntryResponse `json:"history"`
	ChainValid bool                   `json:"chainValid"`
}

func toDutyResponse(d *models.Duty) DutyResponse {
	resp := DutyResponse{
		ID:          d.ID.String(),
		Title:       d.Title,
		Description: d.Description,
		Status:      string(d.Status),
		EvidenceURL: d.EvidenceURL,
		AssignedTo:  d.AssigneeID.String(),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.DueDate != nil {
		resp.DueDate = d.DueDate.Format(models.DateLayout)
	}
	return resp
}

func toDutyListResponse(list []*models.Duty) []DutyResponse {
	out := make([]DutyResponse, 0, len(list))
	for _, d := range list {
		out = append(out, toDutyResponse(d))
	}
	return out
}

func toHistoryResponse(r *models.DutyWithHistory) DutyHistoryResponse {
	entries := make([]HistoryEntryResponse, 0, len(r.History))
	for _, h := range r.History {
		entries = append(entries, HistoryEntryResponse{
			ID:        h.ID.String(),
			Status:    string(h.Status),
			ActorID:   h.ActorID.String(),
			ActorName: h.ActorName,
			Comments:  h.Comment,
			CreatedAt: h.CreatedAt,
		})
	}
	return DutyHistoryResponse{
		DutyResponse: toDutyResponse(r.Duty),
		History:      entries,
		ChainValid:   r.ChainValid,
	}
}
