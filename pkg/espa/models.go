package espa

import (
	"fmt"
	"net/url"
	"strings"

	errs "espadl/pkg/errors"
)

// StatusComplete is the only item status that is surfaced for download
const StatusComplete = "complete"

// archiveSuffix is stripped from file names to form the scene name
const archiveSuffix = ".tar.gz"

// Scene is one downloadable processing result of an order
type Scene struct {
	SourceURL string
	OrderID   string
	FileName  string
	Name      string
}

// NewScene derives a Scene from its download URL. FileName is the last path
// segment of the URL, Name is FileName up to the first ".tar.gz".
func NewScene(sourceURL, orderID string) Scene {
	fileName := lastSegment(sourceURL)
	name := fileName
	if i := strings.Index(fileName, archiveSuffix); i >= 0 {
		name = fileName[:i]
	}
	return Scene{
		SourceURL: sourceURL,
		OrderID:   orderID,
		FileName:  fileName,
		Name:      name,
	}
}

// Validate rejects scenes whose fields would escape the order directory
func (s Scene) Validate() error {
	switch {
	case s.SourceURL == "":
		return errs.New(errs.ErrorTypeParsing, "scene has no download url")
	case !safeSegment(s.OrderID):
		return errs.Newf(errs.ErrorTypeParsing, "invalid order id %q", s.OrderID)
	case !safeSegment(s.FileName):
		return errs.Newf(errs.ErrorTypeParsing, "invalid file name %q in %s", s.FileName, s.SourceURL)
	}
	return nil
}

func (s Scene) String() string {
	return fmt.Sprintf("%s/%s", s.OrderID, s.FileName)
}

func lastSegment(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		// a trailing slash leaves the name empty, which Validate rejects
		return u.Path[strings.LastIndex(u.Path, "/")+1:]
	}
	parts := strings.Split(raw, "/")
	return parts[len(parts)-1]
}

func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// FeedEntry is the structured description of one feed item, encoded by the
// service as "scene_status:<status>,orderid:<id>,orderdate:<date>".
type FeedEntry struct {
	Status    string
	OrderID   string
	OrderDate string
}

// ParseFeedDescription decodes a feed item description
func ParseFeedDescription(description string) (FeedEntry, error) {
	var entry FeedEntry
	for _, field := range strings.Split(strings.TrimSpace(description), ",") {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "scene_status":
			entry.Status = strings.TrimSpace(value)
		case "orderid":
			entry.OrderID = strings.TrimSpace(value)
		case "orderdate":
			// dates carry their own colons
			entry.OrderDate = strings.TrimSpace(value)
		}
	}
	if entry.OrderID == "" {
		return entry, errs.Newf(errs.ErrorTypeParsing, "feed description without order id: %q", description)
	}
	return entry, nil
}

// Item is one entry of the item-status response
type Item struct {
	Name            string `json:"name"`
	Status          string `json:"status"`
	ProductDloadURL string `json:"product_dload_url"`
	Note            string `json:"note,omitempty"`
	CompletionDate  string `json:"completion_date,omitempty"`
}

// Complete reports whether the item can be downloaded
func (i Item) Complete() bool {
	return i.Status == StatusComplete && i.ProductDloadURL != ""
}

// Failure is the error object the API returns instead of items
type Failure struct {
	Kind    errs.ErrorType
	Message string
}

// ListResult is either a Failure or the items grouped by order id
type ListResult struct {
	Failure *Failure
	Items   map[string][]Item
}

// Err converts a failed result into a classified error
func (r ListResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return errs.New(r.Failure.Kind, r.Failure.Message)
}
