package espa

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// AllOrders selects every order placed by the account
	AllOrders = "ALL"

	// FeedEndpoint is the RSS status feed, parameterised by email
	FeedEndpoint = "/ordering/status/%s/rss/"

	// ItemStatusEndpoint lists the items of one order
	ItemStatusEndpoint = "/api/v0/item-status/%s"

	// ListOrdersEndpoint lists the order ids placed with an email
	ListOrdersEndpoint = "/api/v0/list-orders/%s"
)

// FeedURL constructs the status feed URL for an email address
func FeedURL(host, email string) string {
	return joinHost(host, FeedEndpoint, email)
}

// ItemStatusURL constructs the item-status URL for an order
func ItemStatusURL(host, orderID string) string {
	return joinHost(host, ItemStatusEndpoint, orderID)
}

// ListOrdersURL constructs the order listing URL for an email address
func ListOrdersURL(host, email string) string {
	return joinHost(host, ListOrdersEndpoint, email)
}

func joinHost(host, pattern, segment string) string {
	return strings.TrimRight(host, "/") + fmt.Sprintf(pattern, url.PathEscape(segment))
}

// IsAllOrders reports whether orderID selects every order
func IsAllOrders(orderID string) bool {
	return orderID == AllOrders
}
