// Package view derives and maintains the date-grouped dashboard view from
// flat task-title listings. The grouped structure is disposable: it is
// rebuilt from any full listing with the same transform, and only the
// create path is patched in place.
package view

import (
	"time"

	"github.com/wilhelmusolejr/to-do-list/domain"
)

// DayGroup is one display bucket: a calendar date and the tasks created on
// it, in the order they arrived from the store.
type DayGroup struct {
	Date  string             `json:"date"`
	Tasks []domain.TaskTitle `json:"tasks"`
}

// DateFormat is the grouping key layout, a bare calendar date.
const DateFormat = "2006-01-02"

// DateKey truncates a creation instant to its calendar date in loc. The
// location must be applied consistently across build and append paths or
// tasks appear to jump between buckets.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateFormat)
}

// Group partitions titles into per-date buckets. Distinct dates appear in
// first-encounter order while scanning the input; records inside a bucket
// keep their input order. Callers wanting chronological buckets pre-sort
// the input.
func Group(titles []domain.TaskTitle, loc *time.Location) []DayGroup {
	groups := []DayGroup{}
	index := make(map[string]int, len(titles))
	for _, t := range titles {
		key := DateKey(t.CreatedAt, loc)
		i, ok := index[key]
		if !ok {
			index[key] = len(groups)
			groups = append(groups, DayGroup{Date: key})
			i = len(groups) - 1
		}
		groups[i].Tasks = append(groups[i].Tasks, t)
	}
	return groups
}

// Flatten is the inverse scan of Group: bucket order, then in-bucket order.
// Grouping a flattened view reproduces the view, which makes rebuilds
// idempotent.
func Flatten(groups []DayGroup) []domain.TaskTitle {
	var out []domain.TaskTitle
	for _, g := range groups {
		out = append(out, g.Tasks...)
	}
	return out
}
