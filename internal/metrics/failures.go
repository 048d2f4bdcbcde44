package metrics

import "sort"

// FailureBucket is the number of failed iterations that stopped in one
// workload state for one cause.
type FailureBucket struct {
	State string `json:"state" yaml:"state"`
	Cause string `json:"cause" yaml:"cause"`
	Count int64  `json:"count" yaml:"count"`
}

// FlattenFailureBuckets converts a nested state->cause map into a sorted slice of FailureBucket rows.
// Rows are sorted by descending count, then by state/cause for stability.
func FlattenFailureBuckets(buckets map[string]map[string]int64) []FailureBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]FailureBucket, 0)
	for state, causes := range buckets {
		for cause, count := range causes {
			rows = append(rows, FailureBucket{State: state, Cause: cause, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].State == rows[j].State {
				return rows[i].Cause < rows[j].Cause
			}
			return rows[i].State < rows[j].State
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
