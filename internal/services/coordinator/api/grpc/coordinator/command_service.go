package coordinator

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/aggregate"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/temporal"
)

// Commands commits command books.
type Commands interface {
	Handle(ctx context.Context, book command.CommandBook) (event.EventBook, error)
}

// Speculator evaluates command books without writing.
type Speculator interface {
	DryRun(ctx context.Context, bound temporal.Bound, book command.CommandBook) ([]event.EventPage, error)
}

// CommandService implements coordinator.v1.CommandService.
type CommandService struct {
	commands   Commands
	speculator Speculator
}

// NewCommandService creates a CommandService.
func NewCommandService(commands Commands, speculator Speculator) *CommandService {
	return &CommandService{commands: commands, speculator: speculator}
}

// Handle commits a command book and returns the updated stream.
func (s *CommandService) Handle(ctx context.Context, in *HandleRequest) (*HandleResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "handle request is required")
	}
	if s.commands == nil {
		return nil, status.Error(codes.Internal, "command handler is not configured")
	}
	book, err := in.Book.ToDomain()
	if err != nil {
		return nil, toStatus(err)
	}

	updated, err := s.commands.Handle(ctx, book)
	var syncErr *aggregate.SyncDispatchError
	if errors.As(err, &syncErr) {
		report := errorFromDomain(syncErr.Err)
		if _, ok := apperrors.As(syncErr.Err); !ok {
			report.Code = string(apperrors.CodeSyncDispatchFailed)
		}
		return &HandleResponse{Book: EventBookFromDomain(updated), SyncError: report}, nil
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &HandleResponse{Book: EventBookFromDomain(updated)}, nil
}

// DryRun evaluates a command book against current or historical state.
func (s *CommandService) DryRun(ctx context.Context, in *DryRunRequest) (*DryRunResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "dry run request is required")
	}
	if s.speculator == nil {
		return nil, status.Error(codes.Internal, "speculative engine is not configured")
	}
	book, err := in.Book.ToDomain()
	if err != nil {
		return nil, toStatus(err)
	}
	pages, err := s.speculator.DryRun(ctx, boundFromRequest(in.AsOfSequence, in.AsOfTime), book)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DryRunResponse{Pages: pagesFromDomain(pages)}, nil
}
