package audit

import "context"

// Recorder appends admin actions and lists them for the audit view.
type Recorder interface {
	Record(ctx context.Context, action Action) error
	List(ctx context.Context, limit int) ([]Action, error)
}
