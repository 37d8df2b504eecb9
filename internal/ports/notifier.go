package ports

import "context"

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type ProgressFunc func(completed, total int)
