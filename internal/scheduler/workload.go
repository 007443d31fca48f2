package scheduler

import (
	"gonum.org/v1/gonum/stat"

	"github.com/noah-isme/institute-timetable/internal/models"
)

// FacultyLoad is the hours a faculty member was assigned in a run.
type FacultyLoad struct {
	FacultyID   string  `json:"faculty_id"`
	Total       int     `json:"total"`
	Lab         int     `json:"lab"`
	Lecture     int     `json:"lecture"`
	MaxTotal    int     `json:"max_total"`
	Utilisation float64 `json:"utilisation"`
}

// WorkloadSummary aggregates faculty utilisation over a run.
type WorkloadSummary struct {
	Faculty           []FacultyLoad `json:"faculty"`
	MeanUtilisation   float64       `json:"mean_utilisation"`
	StdDevUtilisation float64       `json:"stddev_utilisation"`
}

// SummarizeWorkload computes per-faculty hours, in registry order, over the given placements.
// Faculty without any placement are included with zero load.
func SummarizeWorkload(reg *Registry, placements []models.Placement) WorkloadSummary {
	index := make(map[string]int, len(reg.Faculty()))
	loads := make([]FacultyLoad, 0, len(reg.Faculty()))
	for _, f := range reg.Faculty() {
		index[f.ID] = len(loads)
		loads = append(loads, FacultyLoad{FacultyID: f.ID, MaxTotal: f.MaxHoursPerWeek})
	}
	for _, p := range placements {
		i, ok := index[p.FacultyID]
		if !ok {
			continue
		}
		loads[i].Total += p.Duration
		if p.IsLab {
			loads[i].Lab += p.Duration
		} else {
			loads[i].Lecture += p.Duration
		}
	}

	summary := WorkloadSummary{Faculty: loads}
	if len(loads) == 0 {
		return summary
	}
	utilisation := make([]float64, len(loads))
	for i := range loads {
		if loads[i].MaxTotal > 0 {
			loads[i].Utilisation = float64(loads[i].Total) / float64(loads[i].MaxTotal)
		}
		utilisation[i] = loads[i].Utilisation
	}
	if len(utilisation) == 1 {
		summary.MeanUtilisation = utilisation[0]
		return summary
	}
	summary.MeanUtilisation, summary.StdDevUtilisation = stat.MeanStdDev(utilisation, nil)
	return summary
}
