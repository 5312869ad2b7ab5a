package espa

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	errs "espadl/pkg/errors"
	"espadl/pkg/logger"
)

// APISource queries the JSON item-status API
type APISource struct {
	client *Client
	email  string
	logger logger.Logger
}

// NewAPISource creates an API-backed Source for the given account email
func NewAPISource(client *Client, email string) *APISource {
	return &APISource{
		client: client,
		email:  email,
		logger: client.logger.WithField("source", SourceAPI),
	}
}

// ListCompleted returns the completed scenes of orderID. For AllOrders the
// account's orders are listed first and queried one by one.
func (s *APISource) ListCompleted(ctx context.Context, orderID string) ([]Scene, error) {
	orders := []string{orderID}
	if IsAllOrders(orderID) {
		var err error
		if orders, err = s.ListOrders(ctx); err != nil {
			return nil, err
		}
	}

	var scenes []Scene
	for _, id := range orders {
		result, err := s.ItemStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := result.Err(); err != nil {
			return nil, err
		}
		scenes = append(scenes, completedScenes(result.Items)...)
	}
	return scenes, nil
}

// ListOrders returns the ids of all orders placed with the account email
func (s *APISource) ListOrders(ctx context.Context) ([]string, error) {
	body, err := s.client.Get(ctx, ListOrdersURL(s.client.Host(), s.email))
	if err != nil {
		return nil, err
	}

	var orders []string
	if err := json.Unmarshal(body, &orders); err != nil {
		// some deployments answer with an error object instead
		if result, derr := DecodeListResult(body); derr == nil && result.Failure != nil {
			return nil, result.Err()
		}
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse order list")
	}
	s.logger.DebugWithFields("orders listed", map[string]interface{}{"orders": len(orders)})
	return orders, nil
}

// ItemStatus fetches and decodes the item-status response of one order
func (s *APISource) ItemStatus(ctx context.Context, orderID string) (ListResult, error) {
	body, err := s.client.Get(ctx, ItemStatusURL(s.client.Host(), orderID))
	if err != nil {
		return ListResult{}, err
	}
	return DecodeListResult(body)
}

// DecodeListResult decodes an item-status body: either an error object with
// a "msg" field or a mapping from order id to items.
func DecodeListResult(body []byte) (ListResult, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return ListResult{}, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse item status")
	}

	if msg, ok := raw["msg"]; ok {
		var message string
		if err := json.Unmarshal(msg, &message); err != nil {
			message = string(msg)
		}
		return ListResult{Failure: &Failure{Kind: failureKind(message), Message: message}}, nil
	}

	items := make(map[string][]Item, len(raw))
	for order, data := range raw {
		var list []Item
		if err := json.Unmarshal(data, &list); err != nil {
			return ListResult{}, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse items of order "+order)
		}
		items[order] = list
	}
	return ListResult{Items: items}, nil
}

func completedScenes(items map[string][]Item) []Scene {
	orders := make([]string, 0, len(items))
	for order := range items {
		orders = append(orders, order)
	}
	sort.Strings(orders)

	var scenes []Scene
	for _, order := range orders {
		for _, item := range items[order] {
			if item.Complete() {
				scenes = append(scenes, NewScene(item.ProductDloadURL, order))
			}
		}
	}
	return scenes
}

// failureKind classifies an API error message. Messages about rejected
// credentials are auth failures; anything else means the order is unknown.
func failureKind(message string) errs.ErrorType {
	m := strings.ToLower(message)
	for _, hint := range []string{"password", "credential", "unauthorized", "forbidden", "authenticat", "not allowed"} {
		if strings.Contains(m, hint) {
			return errs.ErrorTypeAuth
		}
	}
	return errs.ErrorTypeNotFound
}
