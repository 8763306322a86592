package health

import "context"

// CachePinger checks result cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// ContentChecker checks that the default content can be opened.
type ContentChecker interface {
	Ready(ctx context.Context) error
}
