package record

import "time"

// Status is the connectivity and progress snapshot published to sync
// engine subscribers. It is ephemeral: only LastSync is persisted (as a
// setting); everything else is rebuilt at process start.
type Status struct {
	Online   bool       `json:"isOnline"`
	Syncing  bool       `json:"isSyncing"`
	LastSync *time.Time `json:"lastSync"`
	Pending  int        `json:"pendingItems"`
	Errors   []string   `json:"syncErrors"`
}

// Clone returns a deep copy so subscribers can hold snapshots without
// aliasing engine state.
func (s Status) Clone() Status {
	out := s
	if s.LastSync != nil {
		t := *s.LastSync
		out.LastSync = &t
	}
	out.Errors = make([]string, len(s.Errors))
	copy(out.Errors, s.Errors)
	return out
}

// Statistics aggregates local store contents for the dashboard and the
// stats CLI command. "Today" is computed by matching the store's date
// string format.
type Statistics struct {
	TotalEntries int `json:"totalEntries"`
	TotalPeople  int `json:"totalPeople"`
	PendingSync  int `json:"pendingSync"`
	TodayEntries int `json:"todayEntries"`
	TodayExits   int `json:"todayExits"`
}

// Snapshot is the full-store dump used by export, import and the
// remote-download reconciliation path.
type Snapshot struct {
	Entries  []Entry           `json:"entries"`
	People   []Person          `json:"people"`
	Settings map[string]string `json:"settings"`
}
