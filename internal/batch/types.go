package batch

import (
	"fmt"

	"github.com/kmatov/barcache/internal/model"
)

// Layout selects how accumulated records are materialized.
type Layout string

const (
	LayoutColumn Layout = "column" // field name -> ordered values
	LayoutRow    Layout = "row"    // ordered records
)

// EventType distinguishes the two emission kinds.
type EventType string

const (
	EventMiniBatch EventType = "minibatch"
	EventBatch     EventType = "batch"
)

// ColumnData is a column-oriented buffer snapshot.
type ColumnData struct {
	Fields []string
	Values map[string][]any
}

// Len returns the number of rows in the snapshot.
func (c ColumnData) Len() int {
	if len(c.Fields) == 0 {
		return 0
	}
	return len(c.Values[c.Fields[0]])
}

// Event is delivered synchronously to listeners in registration order.
// Exactly one of Columns or Rows is populated, per the layout.
type Event struct {
	Type    EventType
	Layout  Layout
	Columns ColumnData
	Rows    []model.Record
}

// Size returns the number of records the event carries.
func (e Event) Size() int {
	if e.Layout == LayoutColumn {
		return e.Columns.Len()
	}
	return len(e.Rows)
}

// Listener receives emitted events.
type Listener func(Event)

// ProviderFetchError wraps a provider failure for one request; the request
// is aborted without finalizing a partial batch.
type ProviderFetchError struct {
	Filter model.NewsFilter
	Err    error
}

func (e *ProviderFetchError) Error() string {
	return fmt.Sprintf("provider fetch failed for filter %s: %v", e.Filter.CacheKey(), e.Err)
}

func (e *ProviderFetchError) Unwrap() error {
	return e.Err
}
