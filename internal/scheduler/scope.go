package scheduler

import (
	"sort"
	"strings"

	"github.com/noah-isme/institute-timetable/internal/models"
)

// Scope selects the batches a run schedules. All wins over the other fields; a department and a
// batch list narrow each other when both are set.
type Scope struct {
	All          bool     `json:"all"`
	DepartmentID string   `json:"department_id,omitempty"`
	BatchIDs     []string `json:"batch_ids,omitempty"`
}

// Empty reports whether the scope selects nothing.
func (s Scope) Empty() bool {
	return !s.All && s.DepartmentID == "" && len(s.BatchIDs) == 0
}

// Includes reports whether the batch falls inside the scope.
func (s Scope) Includes(b models.Batch) bool {
	if s.All {
		return true
	}
	if s.DepartmentID != "" && b.DepartmentID != s.DepartmentID {
		return false
	}
	if len(s.BatchIDs) == 0 {
		return s.DepartmentID != ""
	}
	for _, id := range s.BatchIDs {
		if id == b.ID {
			return true
		}
	}
	return false
}

// IncludesDepartment reports whether batches of the department can be in scope.
func (s Scope) IncludesDepartment(departmentID string) bool {
	return s.All || s.DepartmentID == "" || s.DepartmentID == departmentID
}

// String renders a stable key for the scope, used for logging and run locks.
func (s Scope) String() string {
	if s.All {
		return "all"
	}
	parts := make([]string, 0, 2)
	if s.DepartmentID != "" {
		parts = append(parts, "department="+s.DepartmentID)
	}
	if len(s.BatchIDs) > 0 {
		ids := append([]string(nil), s.BatchIDs...)
		sort.Strings(ids)
		parts = append(parts, "batches="+strings.Join(ids, ","))
	}
	return strings.Join(parts, ";")
}
