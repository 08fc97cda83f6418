package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/learner-progress/internal/identity"
	"github.com/JakeFAU/learner-progress/internal/store"
	"github.com/JakeFAU/learner-progress/internal/tracker"
)

type heartbeatRequest struct {
	LeafID         string `json:"leaf_id" validate:"required,max=256"`
	ElapsedSeconds *int64 `json:"elapsed_s" validate:"required,gte=0"`
	GroupingID     string `json:"grouping_id" validate:"omitempty,max=256"`
	ContainerID    string `json:"container_id" validate:"omitempty,max=256"`
}

type completeRequest struct {
	NodeID      string `json:"node_id" validate:"required,max=256"`
	Kind        string `json:"kind" validate:"omitempty,oneof=leaf grouping container"`
	ContainerID string `json:"container_id" validate:"omitempty,max=256"`
}

type containerProgressRequest struct {
	LeafID     string `json:"leaf_id" validate:"required,max=256"`
	TimeSpentS *int64 `json:"time_spent_s" validate:"required,gte=0"`
	Completed  bool   `json:"completed"`
}

type recordResponse struct {
	ID              string     `json:"id"`
	NodeID          string     `json:"node_id"`
	Kind            store.Kind `json:"kind"`
	Title           string     `json:"title,omitempty"`
	TotalTimeSpentS int64      `json:"total_time_spent_s"`
	Completed       bool       `json:"completed"`
	CompletedAt     *time.Time `json:"completed_at"`
	TimeToCompleteS *int64     `json:"time_to_complete_s"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type ancestorResponse struct {
	NodeID          string     `json:"node_id"`
	Kind            store.Kind `json:"kind"`
	NewlyCompleted  bool       `json:"newly_completed"`
	CompletedAt     *time.Time `json:"completed_at"`
	TimeToCompleteS *int64     `json:"time_to_complete_s"`
}

type completeResponse struct {
	Record          recordResponse     `json:"record"`
	NewlyCompleted  bool               `json:"newly_completed"`
	AncestorUpdates []ancestorResponse `json:"ancestor_updates"`
}

type leafResponse struct {
	LeafID      string     `json:"leaf_id"`
	GroupingID  string     `json:"grouping_id"`
	Title       string     `json:"title,omitempty"`
	Optional    bool       `json:"optional"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	TimeSpentS  int64      `json:"time_spent_s"`
}

type progressCounts struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type containerResponse struct {
	ContainerID     string         `json:"container_id"`
	Title           string         `json:"title,omitempty"`
	TopologyVersion string         `json:"topology_version"`
	Status          tracker.Status `json:"status"`
	Progress        progressCounts `json:"progress"`
	TimeSpentS      int64          `json:"time_spent_s"`
	CompletedAt     *time.Time     `json:"completed_at"`
	TimeToCompleteS *int64         `json:"time_to_complete_s"`
	Leaves          []leafResponse `json:"leaves"`
}

func toRecordResponse(rec store.Record) recordResponse {
	return recordResponse{
		ID:              rec.ID.String(),
		NodeID:          rec.NodeID,
		Kind:            rec.Kind,
		Title:           rec.Title,
		TotalTimeSpentS: rec.TotalTimeSpentS,
		Completed:       rec.Completed(),
		CompletedAt:     rec.CompletedAt,
		TimeToCompleteS: rec.TimeToCompleteS,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

func toContainerResponse(sum tracker.ContainerSummary) containerResponse {
	leaves := make([]leafResponse, 0, len(sum.Leaves))
	for _, l := range sum.Leaves {
		leaves = append(leaves, leafResponse{
			LeafID:      l.LeafID,
			GroupingID:  l.GroupingID,
			Title:       l.Title,
			Optional:    !l.Required,
			Completed:   l.Completed,
			CompletedAt: l.CompletedAt,
			TimeSpentS:  l.TimeSpentS,
		})
	}
	return containerResponse{
		ContainerID:     sum.ContainerID,
		Title:           sum.Title,
		TopologyVersion: sum.TopologyVersion,
		Status:          sum.Status,
		Progress:        progressCounts{Completed: sum.CompletedRequired, Total: sum.TotalRequired},
		TimeSpentS:      sum.TimeSpentS,
		CompletedAt:     sum.CompletedAt,
		TimeToCompleteS: sum.TimeToCompleteS,
		Leaves:          leaves,
	}
}

// caller is set by identity.Middleware on every /v1 route.
func caller(r *http.Request) store.Identity {
	id, _ := identity.FromContext(r.Context())
	return id
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.tracker.Heartbeat(r.Context(), tracker.Heartbeat{
		Identity:       caller(r),
		LeafID:         req.LeafID,
		ElapsedSeconds: *req.ElapsedSeconds,
		GroupingID:     req.GroupingID,
		ContainerID:    req.ContainerID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind := store.KindLeaf
	if req.Kind != "" {
		parsed, err := store.ParseKind(req.Kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = parsed
	}
	res, err := s.tracker.Complete(r.Context(), tracker.Completion{
		Identity:    caller(r),
		NodeID:      req.NodeID,
		Kind:        kind,
		ContainerID: req.ContainerID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	ancestors := make([]ancestorResponse, 0, len(res.AncestorUpdates))
	for _, u := range res.AncestorUpdates {
		ancestors = append(ancestors, ancestorResponse{
			NodeID:          u.NodeID,
			Kind:            u.Kind,
			NewlyCompleted:  u.Newly,
			CompletedAt:     u.Record.CompletedAt,
			TimeToCompleteS: u.Record.TimeToCompleteS,
		})
	}
	writeJSON(w, http.StatusOK, completeResponse{
		Record:          toRecordResponse(res.Record),
		NewlyCompleted:  res.Newly,
		AncestorUpdates: ancestors,
	})
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	rec, err := s.tracker.Get(r.Context(), caller(r), chi.URLParam(r, "node_id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (s *Server) containerSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.tracker.ContainerSummary(r.Context(), caller(r), chi.URLParam(r, "container_id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContainerResponse(sum))
}

func (s *Server) containerProgress(w http.ResponseWriter, r *http.Request) {
	var req containerProgressRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.tracker.RecordContainerProgress(r.Context(), tracker.ContainerProgress{
		Identity:       caller(r),
		ContainerID:    chi.URLParam(r, "container_id"),
		LeafID:         req.LeafID,
		ElapsedSeconds: *req.TimeSpentS,
		Completed:      req.Completed,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContainerResponse(sum))
}
