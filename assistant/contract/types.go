package contract

import (
	"encoding/json"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Kind identifies one category of cached record.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindInvoice  Kind = "invoice"
	KindPayment  Kind = "payment"
)

// Kinds returns every known kind in stable order.
func Kinds() []Kind {
	return []Kind{KindCustomer, KindInvoice, KindPayment}
}

func (k Kind) Valid() bool {
	switch k {
	case KindCustomer, KindInvoice, KindPayment:
		return true
	default:
		return false
	}
}

// Filter narrows an upstream or cache read. Zero-value fields are ignored.
type Filter struct {
	CustomerID string    `json:"customer_id,omitempty"`
	StartDate  time.Time `json:"start_date,omitempty"`
	EndDate    time.Time `json:"end_date,omitempty"`
}

func (f Filter) IsZero() bool {
	return f.CustomerID == "" && f.StartDate.IsZero() && f.EndDate.IsZero()
}

func (f Filter) HasDateRange() bool {
	return !f.StartDate.IsZero() || !f.EndDate.IsZero()
}

// Narrow reports whether the filter combines a customer with a date range.
// Narrow reads bypass the cache and hit upstream directly: a narrow slice is
// not a superset-refresh pattern, so caching it would poison the watermark.
func (f Filter) Narrow() bool {
	return f.CustomerID != "" && f.HasDateRange()
}

// Document is one upstream record before it is cached. Fields are always
// derived from Raw at store-write time, never carried alongside it.
type Document struct {
	ExternalID string          `json:"external_id"`
	Raw        json.RawMessage `json:"raw"`
}

// Record is a cached copy of an upstream document.
type Record struct {
	ExternalID string          `json:"external_id"`
	Kind       Kind            `json:"kind"`
	Fields     map[string]any  `json:"domain_fields"`
	Raw        json.RawMessage `json:"raw_payload"`
	CachedAt   time.Time       `json:"cached_at"`
}

// SyncSummary reports the outcome of a forced bulk sync.
type SyncSummary struct {
	Synced  int `json:"synced_count"`
	New     int `json:"new_count"`
	Updated int `json:"updated_count"`
	Errors  int `json:"error_count"`
}

// ContextBudget bounds how much cached data one utterance may pull in.
// It is recomputed per request and never persisted.
type ContextBudget struct {
	MaxItemsPerDomain int
	MaxAge            time.Duration
}

const (
	DefaultMaxItemsPerDomain = 30
	DefaultMaxAge            = 5 * time.Minute

	// DetailedMaxItemsPerDomain applies when the caller asked for full field
	// sets: each item costs more of the context window, so fewer fit.
	DetailedMaxItemsPerDomain = 10
)

func DefaultBudget() ContextBudget {
	return ContextBudget{
		MaxItemsPerDomain: DefaultMaxItemsPerDomain,
		MaxAge:            DefaultMaxAge,
	}
}

// ContextResult is the grounding block handed to the conversational layer.
type ContextResult struct {
	TextBlock      string             `json:"text_block"`
	Actions        []*schema.ToolInfo `json:"available_actions,omitempty"`
	UsedDomains    []Kind             `json:"used_domains,omitempty"`
	OmittedDomains []Kind             `json:"omitted_domains,omitempty"`
}
