package event

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
)

// Cover identifies the stream a book belongs to.
type Cover struct {
	Domain        string
	Root          uuid.UUID
	CorrelationID string
}

// Validate reports whether the cover can address a stream.
func (c Cover) Validate() error {
	if strings.TrimSpace(c.Domain) == "" {
		return apperrors.New(apperrors.KindInvalidArgument, apperrors.CodeCoverInvalid, "cover domain is required")
	}
	if c.Root == uuid.Nil {
		return apperrors.New(apperrors.KindInvalidArgument, apperrors.CodeCoverInvalid, "cover root is required")
	}
	return nil
}

// Key returns domain/root, stable for logging and map keys. The correlation
// id is not part of the stream identity.
func (c Cover) Key() string {
	return fmt.Sprintf("%s/%s", c.Domain, c.Root)
}

// Stream returns the cover without its correlation id.
func (c Cover) Stream() Cover {
	return Cover{Domain: c.Domain, Root: c.Root}
}

// WithCorrelation returns a copy of the cover carrying correlationID.
func (c Cover) WithCorrelation(correlationID string) Cover {
	c.CorrelationID = correlationID
	return c
}
