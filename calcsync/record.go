package calcsync

import (
	"sort"
	"time"

	"github.com/jrsteele09/go-dashboard-client/adapters"
)

// Record is one calculation history entry. ID is nil until the backend has
// confirmed the record; LocalID identifies records created on this device.
type Record struct {
	ID        *string        `json:"id,omitempty"`
	LocalID   string         `json:"local_id,omitempty"`
	Company   string         `json:"company"`
	Input     map[string]any `json:"input"`
	Result    map[string]any `json:"result"`
	Timestamp time.Time      `json:"timestamp"`
	Name      *string        `json:"name,omitempty"`
}

func (r Record) Pending() bool {
	return r.ID == nil
}

// key identifies a record inside the persisted history.
func (r Record) key() string {
	if r.LocalID != "" {
		return r.LocalID
	}
	if r.ID != nil {
		return "id:" + *r.ID
	}
	return ""
}

func fromCalculation(c adapters.Calculation) Record {
	return Record{
		ID:        c.ID,
		Company:   c.Company,
		Input:     c.Input,
		Result:    c.Result,
		Timestamp: c.Timestamp,
		Name:      c.Name,
	}
}

// sortHistory orders records newest first. Equal timestamps put pending
// records before synced ones, then order by LocalID and ID so the result does
// not depend on the input order.
func sortHistory(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.Pending() != b.Pending() {
			return a.Pending()
		}
		if a.LocalID != b.LocalID {
			return a.LocalID < b.LocalID
		}
		return idOf(a) < idOf(b)
	})
}

func idOf(r Record) string {
	if r.ID == nil {
		return ""
	}
	return *r.ID
}
