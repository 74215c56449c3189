package coordinator

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/platform/grpc/pagination"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/filter"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/process"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/temporal"
)

const (
	defaultEventPageSize = 500
	maxEventPageSize     = 1000
)

// Queries reads stream history.
type Queries interface {
	Query(ctx context.Context, cover event.Cover, bound temporal.Bound) (event.EventBook, error)
}

// ProcessStates reads process manager state.
type ProcessStates interface {
	ProcessState(ctx context.Context, name, correlationID string) (process.StateView, error)
}

// EventQueryService implements coordinator.v1.EventQueryService.
type EventQueryService struct {
	queries   Queries
	processes ProcessStates
}

// NewEventQueryService creates an EventQueryService.
func NewEventQueryService(queries Queries, processes ProcessStates) *EventQueryService {
	return &EventQueryService{queries: queries, processes: processes}
}

// GetEventBook returns a stream's pages, bounded, filtered, and paged in
// sequence order.
func (s *EventQueryService) GetEventBook(ctx context.Context, in *GetEventBookRequest) (*GetEventBookResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "get event book request is required")
	}
	if s.queries == nil {
		return nil, status.Error(codes.Internal, "query engine is not configured")
	}
	cover, err := in.Cover.ToDomain()
	if err != nil {
		return nil, toStatus(err)
	}
	pred, err := filter.Parse(in.Filter)
	if err != nil {
		return nil, toStatus(err)
	}
	from, err := pagination.DecodeToken(in.PageToken)
	if err != nil {
		return nil, toStatus(apperrors.Wrap(apperrors.KindInvalidArgument, apperrors.CodePageTokenInvalid, "page token is invalid", err))
	}
	pageSize := pagination.ClampPageSize(in.PageSize, pagination.PageSizeConfig{
		Default: defaultEventPageSize,
		Max:     maxEventPageSize,
	})

	book, err := s.queries.Query(ctx, cover, boundFromRequest(in.AsOfSequence, in.AsOfTime))
	if err != nil {
		return nil, toStatus(err)
	}

	var pages []event.EventPage
	var next string
	for _, page := range filter.Pages(book, pred) {
		if page.Sequence < from {
			continue
		}
		if len(pages) == pageSize {
			next = pagination.EncodeToken(page.Sequence)
			break
		}
		pages = append(pages, page)
	}
	out := event.EventBook{Cover: book.Cover, Pages: pages}
	return &GetEventBookResponse{Book: EventBookFromDomain(out), NextPageToken: next}, nil
}

// GetProcessState returns a process manager's stream and state.
func (s *EventQueryService) GetProcessState(ctx context.Context, in *GetProcessStateRequest) (*GetProcessStateResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "get process state request is required")
	}
	if s.processes == nil {
		return nil, status.Error(codes.Internal, "process engine is not configured")
	}
	name := strings.TrimSpace(in.Process)
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "process name is required")
	}
	view, err := s.processes.ProcessState(ctx, name, in.CorrelationID)
	if err != nil {
		return nil, toStatus(err)
	}
	state, err := json.Marshal(view.State)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetProcessStateResponse{Book: EventBookFromDomain(view.Book), State: state}, nil
}
