package espa

import (
	"context"
	"fmt"
)

// Source kinds accepted by NewSource
const (
	SourceFeed = "feed"
	SourceAPI  = "api"
)

// Source lists the completed scenes of an order, or of every order when
// orderID is AllOrders. Auth and not-found failures are classified with
// espadl/pkg/errors so callers can abort the run.
type Source interface {
	ListCompleted(ctx context.Context, orderID string) ([]Scene, error)
}

// NewSource returns the Source implementation named by kind
func NewSource(kind string, client *Client, email string) (Source, error) {
	switch kind {
	case SourceFeed, "":
		return NewFeedSource(client, email), nil
	case SourceAPI:
		return NewAPISource(client, email), nil
	default:
		return nil, fmt.Errorf("unknown order source %q (want %q or %q)", kind, SourceFeed, SourceAPI)
	}
}
