package analysis

import (
	"sort"
	"time"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// TimelineGroup holds the alerts raised on one calendar day. Day is zero for
// the undated group.
type TimelineGroup struct {
	Day    time.Time      `json:"day"`
	Alerts []model.Record `json:"alerts"`
}

// Timeline groups alerts by UTC day, newest day first, with undated alerts
// last. Within a day alerts are ordered by severity, then newest first.
func Timeline(alerts []model.Record) []TimelineGroup {
	byDay := make(map[time.Time][]model.Record)
	for _, a := range alerts {
		if a.Kind != model.KindAlert {
			continue
		}
		day := time.Time{}
		if !a.Timestamp.IsZero() {
			day = truncateDay(a.Timestamp)
		}
		byDay[day] = append(byDay[day], a)
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool {
		if days[i].IsZero() != days[j].IsZero() {
			return days[j].IsZero()
		}
		return days[i].After(days[j])
	})

	out := make([]TimelineGroup, 0, len(days))
	for _, d := range days {
		group := byDay[d]
		sort.SliceStable(group, func(i, j int) bool {
			ri, rj := group[i].Severity.Rank(), group[j].Severity.Rank()
			if ri != rj {
				return ri > rj
			}
			return group[i].Timestamp.After(group[j].Timestamp)
		})
		out = append(out, TimelineGroup{Day: d, Alerts: group})
	}
	return out
}

// SLA states.
const (
	SLANone     = "none"
	SLAOnTrack  = "on_track"
	SLADueSoon  = "due_soon"
	SLABreached = "breached"
)

// SLAStatus classifies an open record against its due date.
func SLAStatus(r *model.Record, now time.Time, dueSoon time.Duration) string {
	if r.DueDate.IsZero() || r.IsClosed() {
		return SLANone
	}
	if now.After(r.DueDate) {
		return SLABreached
	}
	if r.DueDate.Sub(now) <= dueSoon {
		return SLADueSoon
	}
	return SLAOnTrack
}
