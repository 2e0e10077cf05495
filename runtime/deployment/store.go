package deployment

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store lookups that find no matching version.
var ErrNotFound = errors.New("deployment: version not found")

// Store persists deployment versions. A graph's versions are numbered
// from 1 upward; DeleteVersion can leave gaps in the sequence. At most one
// version per graph has IsActive set.
type Store interface {
	// CreateVersion inserts v. Callers set v.Version to one more than the
	// graph's current maximum before calling, inside the same logical
	// operation that decides whether a new version is needed at all, so
	// two concurrent deploys of the same graph racing for the same
	// version number is a caller-level concern this interface does not
	// itself arbitrate.
	CreateVersion(ctx context.Context, v Version) error

	// GetVersion returns ErrNotFound if graphID has no such version.
	GetVersion(ctx context.Context, graphID string, version int) (Version, error)

	// ListVersions returns one page of graphID's versions ordered by
	// version descending, plus the total count across all pages.
	ListVersions(ctx context.Context, graphID string, page, size int) (Page, error)

	// ActiveVersion returns the graph's currently active version, if any.
	ActiveVersion(ctx context.Context, graphID string) (Version, bool, error)

	// MaxVersion returns the highest version number recorded for graphID,
	// or 0 if none exist.
	MaxVersion(ctx context.Context, graphID string) (int, error)

	// SetActive deactivates every other version of graphID and activates
	// version. Returns ErrNotFound if version does not exist.
	SetActive(ctx context.Context, graphID string, version int) error

	// RenameVersion updates a version's display name only.
	RenameVersion(ctx context.Context, graphID string, version int, name string) error

	// DeleteVersion removes a version. Callers must check it is not
	// active before calling; Store does not enforce that rule itself.
	DeleteVersion(ctx context.Context, graphID string, version int) error
}
