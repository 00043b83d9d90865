package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"

	"github.com/kbowden/redirtun/internal/appconfig"
	"github.com/kbowden/redirtun/internal/model"
)

// record is what this CLI persists about one `up` invocation, purely for
// its own convenience across separate process invocations — the core
// library itself never persists anything (spec.md §1).
type record struct {
	CLIPID      int                `json:"cli_pid"`
	Hop         string             `json:"hop"`
	Forwardings []model.Forwarding `json:"forwardings"`
}

func runtimeFilePath() (string, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cli-runtime.json"), nil
}

func loadRecords() ([]record, error) {
	path, err := runtimeFilePath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var recs []record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func saveRecords(recs []record) error {
	path, err := runtimeFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func appendRecord(r record) error {
	recs, err := loadRecords()
	if err != nil {
		return err
	}
	recs = append(recs, r)
	return saveRecords(recs)
}

func removeRecord(cliPID int) error {
	recs, err := loadRecords()
	if err != nil {
		return err
	}
	kept := make([]record, 0, len(recs))
	for _, r := range recs {
		if r.CLIPID != cliPID {
			kept = append(kept, r)
		}
	}
	return saveRecords(kept)
}

// liveRecords returns recs with any entry whose CLIPID no longer exists
// pruned (and persists the pruned list), surfacing stale runtime state
// instead of silently acting on it.
func liveRecords() ([]record, error) {
	recs, err := loadRecords()
	if err != nil {
		return nil, err
	}
	kept := make([]record, 0, len(recs))
	changed := false
	for _, r := range recs {
		if processAlive(r.CLIPID) {
			kept = append(kept, r)
		} else {
			changed = true
		}
	}
	if changed {
		if err := saveRecords(kept); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
