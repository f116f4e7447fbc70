package daemon

import (
	"encoding/json"
	"os"
	"time"

	"github.com/tuncenator/ytmpd/internal/shared"
	"github.com/tuncenator/ytmpd/internal/syncengine"
)

// State is the daemon's persisted record, rewritten atomically after every
// sync completion.
type State struct {
	LastSync       time.Time          `json:"lastSync"`
	LastSyncResult *syncengine.Result `json:"lastSyncResult"`
	StartedAt      time.Time          `json:"startedAt"`
}

// loadState reads the persisted state file. A missing or corrupt file is
// never fatal: it is treated as "no history" and a fresh State is returned.
func loadState(path string) State {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}
	}
	return s
}

// save persists State atomically (write-temp, fsync, rename).
func (s State) save(path string) error {
	data, err := shared.MarshalJSON(s, true)
	if err != nil {
		return err
	}
	return shared.WriteFileAtomic(path, data, 0600)
}
