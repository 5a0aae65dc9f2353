package events

import (
	"time"

	"call-compass-go/internal/types"
)

// Kind names an event variant on the wire (websocket stream, metrics labels).
type Kind string

const (
	KindCallsUpdated      Kind = "CALLS_UPDATED"
	KindDataSourceChanged Kind = "DATA_SOURCE_CHANGED"
	KindCallsSelected     Kind = "CALLS_SELECTED"
	KindAnalysisCompleted Kind = "ANALYSIS_COMPLETED"
	KindStoreUpdated      Kind = "STORE_UPDATED"
)

// Event is one of the variants declared in this package. Subscribers switch on the
// concrete type.
type Event interface {
	Kind() Kind
	sealed()
}

// CallsUpdated follows Manager.UpdateCalls.
type CallsUpdated struct {
	Calls       []types.CallRecord `json:"calls"`
	Source      types.DataSource   `json:"source"`
	SelectedIDs []string           `json:"selectedIds"`
	At          time.Time          `json:"at"`
}

// DataSourceChanged follows Manager.ChangeDataSource. The selection is always empty afterwards.
type DataSourceChanged struct {
	Source types.DataSource   `json:"source"`
	Calls  []types.CallRecord `json:"calls"`
	At     time.Time          `json:"at"`
}

// CallsSelected follows Manager.UpdateSelection and Manager.PruneSelection.
type CallsSelected struct {
	SelectedIDs []string           `json:"selectedIds"`
	Calls       []types.CallRecord `json:"calls"`
	At          time.Time          `json:"at"`
}

// AnalysisCompleted follows Manager.CompleteAnalysis.
type AnalysisCompleted struct {
	AnalyzedCalls []types.CallRecord `json:"analyzedCalls"`
	AllCalls      []types.CallRecord `json:"allCalls"`
	Source        types.DataSource   `json:"source"`
	At            time.Time          `json:"at"`
}

// StoreUpdated is sent after the persisted analysis store changed.
type StoreUpdated struct {
	IDs     []string  `json:"ids"`
	Total   int       `json:"total"`
	Cleared bool      `json:"cleared,omitempty"`
	At      time.Time `json:"at"`
}

func (CallsUpdated) Kind() Kind      { return KindCallsUpdated }
func (DataSourceChanged) Kind() Kind { return KindDataSourceChanged }
func (CallsSelected) Kind() Kind     { return KindCallsSelected }
func (AnalysisCompleted) Kind() Kind { return KindAnalysisCompleted }
func (StoreUpdated) Kind() Kind      { return KindStoreUpdated }

func (CallsUpdated) sealed()      {}
func (DataSourceChanged) sealed() {}
func (CallsSelected) sealed()     {}
func (AnalysisCompleted) sealed() {}
func (StoreUpdated) sealed()      {}
