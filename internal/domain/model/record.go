package model

import (
	"encoding/json"
	"time"
)

// Record is one tweet fetched from the source. Raw carries the full upstream
// object so the archive preserves fields the typed view does not surface.
type Record struct {
	ID        string          `json:"id"`
	AuthorID  string          `json:"author_id,omitempty"`
	Username  string          `json:"username,omitempty"`
	Text      string          `json:"text"`
	CreatedAt time.Time       `json:"created_at"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// EstimateRequest asks for tweet counts over the same filters a download uses.
type EstimateRequest struct {
	Accounts  []string  `json:"accounts"`
	Queries   []string  `json:"queries"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Spec converts the estimate filters into a JobSpec so both endpoints share
// validation and pair expansion.
func (r *EstimateRequest) Spec() *JobSpec {
	return &JobSpec{
		Accounts:  r.Accounts,
		Queries:   r.Queries,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
	}
}

// PairEstimate is the estimated tweet count for one (account, query) pair.
type PairEstimate struct {
	Pair   Pair `json:"pair"`
	Count  int  `json:"count"`
	Cached bool `json:"cached"`
}

// EstimateResponse aggregates per-pair counts for an estimate request.
type EstimateResponse struct {
	Total int            `json:"total"`
	Pairs []PairEstimate `json:"pairs"`
}
