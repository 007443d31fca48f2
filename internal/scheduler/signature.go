package scheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/noah-isme/institute-timetable/internal/models"
)

// Signature hashes a placement set independent of slice order. Identical inputs give identical
// signatures; ids and timestamps are not part of it.
func Signature(placements []models.Placement) string {
	sorted := append([]models.Placement(nil), placements...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Day.Index() != b.Day.Index() {
			return a.Day.Index() < b.Day.Index()
		}
		if a.StartSlot != b.StartSlot {
			return a.StartSlot < b.StartSlot
		}
		if a.BatchID != b.BatchID {
			return a.BatchID < b.BatchID
		}
		if a.RoomID != b.RoomID {
			return a.RoomID < b.RoomID
		}
		if a.SubjectID != b.SubjectID {
			return a.SubjectID < b.SubjectID
		}
		return a.Occurrence < b.Occurrence
	})

	h := sha256.New()
	for _, p := range sorted {
		fmt.Fprintf(h, "%s|%d|%d|%s|%s|%s|%s|%t|%d\n",
			p.Day, p.StartSlot, p.Duration, p.BatchID, p.RoomID, p.FacultyID, p.SubjectID, p.IsLab, p.Occurrence)
	}
	return hex.EncodeToString(h.Sum(nil))
}
