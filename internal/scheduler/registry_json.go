package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
)

// LoadSnapshotJSON decodes a registry snapshot and applies availability defaults.
func LoadSnapshotJSON(r io.Reader) (Snapshot, error) {
	var snapshot Snapshot
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode registry snapshot: %w", err)
	}
	return ApplyDefaults(snapshot), nil
}
