package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ceskapp/directory/internal/domain"
)

func (s *Server) registerEngagementRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getEngagementState",
		Method:      http.MethodGet,
		Path:        "/api/v1/engagements/{itemID}",
		Summary:     "Engagement state",
		Description: "Returns whether the viewer viewed, liked or bookmarked the item, and its like count",
		Tags:        []string{"Engagement"},
	}, s.handleGetEngagementState)

	huma.Register(s.api, huma.Operation{
		OperationID: "recordEngagement",
		Method:      http.MethodPut,
		Path:        "/api/v1/engagements/{itemID}/{kind}",
		Summary:     "Record engagement",
		Description: "Idempotently records a view, like or bookmark. Repeating it reports already_exists",
		Tags:        []string{"Engagement"},
	}, s.handleRecordEngagement)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeEngagement",
		Method:      http.MethodDelete,
		Path:        "/api/v1/engagements/{itemID}/{kind}",
		Summary:     "Remove engagement",
		Description: "Idempotently removes a like or bookmark. Removing a missing record reports not_found",
		Tags:        []string{"Engagement"},
	}, s.handleRemoveEngagement)
}

// ItemPathInput identifies an item.
type ItemPathInput struct {
	ItemID string `path:"itemID" doc:"Trainer or post ID"`
}

// EngagementPathInput identifies one engagement of the request's viewer.
type EngagementPathInput struct {
	ItemID string `path:"itemID" doc:"Trainer or post ID"`
	Kind   string `path:"kind" doc:"view, like or bookmark"`
}

// EngagementStateOutput wraps the engagement state for Huma.
type EngagementStateOutput struct {
	Body domain.EngagementState
}

// OutcomeResponse reports what an idempotent write did.
type OutcomeResponse struct {
	Outcome domain.Outcome `json:"outcome" enum:"applied,already_exists,not_found" doc:"What the write did"`
}

// OutcomeOutput wraps the outcome for Huma.
type OutcomeOutput struct {
	Body OutcomeResponse
}

func (s *Server) handleGetEngagementState(ctx context.Context, input *ItemPathInput) (*EngagementStateOutput, error) {
	state, err := s.services.Engagement.State(ctx, viewerFromContext(ctx), input.ItemID)
	if err != nil {
		return nil, err
	}
	return &EngagementStateOutput{Body: state}, nil
}

func (s *Server) handleRecordEngagement(ctx context.Context, input *EngagementPathInput) (*OutcomeOutput, error) {
	viewer, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	outcome, err := s.services.Engagement.Record(ctx, viewer, input.ItemID, domain.EngagementKind(input.Kind))
	if err != nil {
		return nil, err
	}
	return &OutcomeOutput{Body: OutcomeResponse{Outcome: outcome}}, nil
}

func (s *Server) handleRemoveEngagement(ctx context.Context, input *EngagementPathInput) (*OutcomeOutput, error) {
	viewer, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	outcome, err := s.services.Engagement.Unrecord(ctx, viewer, input.ItemID, domain.EngagementKind(input.Kind))
	if err != nil {
		return nil, err
	}
	return &OutcomeOutput{Body: OutcomeResponse{Outcome: outcome}}, nil
}
