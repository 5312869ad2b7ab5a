package espa

import (
	"bytes"
	"context"

	errs "espadl/pkg/errors"
	"espadl/pkg/logger"

	"github.com/mmcdole/gofeed"
)

// FeedSource reads the per-account RSS status feed
type FeedSource struct {
	client *Client
	email  string
	logger logger.Logger
}

// NewFeedSource creates a feed-backed Source for the given account email
func NewFeedSource(client *Client, email string) *FeedSource {
	return &FeedSource{
		client: client,
		email:  email,
		logger: client.logger.WithField("source", SourceFeed),
	}
}

// ListCompleted fetches the feed and returns the completed scenes of orderID
func (s *FeedSource) ListCompleted(ctx context.Context, orderID string) ([]Scene, error) {
	url := FeedURL(s.client.Host(), s.email)
	s.logger.DebugWithFields("retrieving feed", map[string]interface{}{
		"url":      url,
		"order_id": orderID,
	})

	body, err := s.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse order feed")
	}

	var scenes []Scene
	for _, item := range feed.Items {
		entry, err := ParseFeedDescription(item.Description)
		if err != nil {
			s.logger.WithError(err).Warn("skipping feed item")
			continue
		}
		if entry.Status != StatusComplete {
			continue
		}
		if !IsAllOrders(orderID) && entry.OrderID != orderID {
			continue
		}
		if item.Link == "" {
			s.logger.WithField("order_id", entry.OrderID).Warn("skipping feed item without link")
			continue
		}
		scenes = append(scenes, NewScene(item.Link, entry.OrderID))
	}

	s.logger.DebugWithFields("feed listed", map[string]interface{}{
		"items":     len(feed.Items),
		"completed": len(scenes),
	})
	return scenes, nil
}
