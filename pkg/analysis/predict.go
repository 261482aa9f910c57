package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// DaysUntil returns the number of calendar days from now to t (negative when
// t is in the past), comparing UTC dates only.
func DaysUntil(now, t time.Time) int {
	a := truncateDay(now)
	b := truncateDay(t)
	return int(b.Sub(a).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type deadlineBand struct {
	key        string
	label      string
	severity   model.Severity
	confidence float64
}

func (p Policy) bandFor(days int) deadlineBand {
	switch {
	case days < 0:
		return deadlineBand{"overdue", "overdue", model.SeverityCritical, p.OverdueConfidence}
	case days <= p.HighWithinDays:
		return deadlineBand{"imminent", fmt.Sprintf("due within %d days", p.HighWithinDays), model.SeverityHigh, p.ImminentConfidence}
	case days <= p.MediumWithinDays:
		return deadlineBand{"soon", fmt.Sprintf("due within %d days", p.MediumWithinDays), model.SeverityMedium, p.UpcomingConfidence}
	default:
		return deadlineBand{"upcoming", fmt.Sprintf("due within %d days", p.LookaheadDays), model.SeverityLow, p.UpcomingConfidence}
	}
}

// PredictDeadlines buckets open records with a due date inside the lookahead
// window into severity bands, one insight per non-empty band. Overdue records
// are always included. Record IDs are ordered by due date.
func PredictDeadlines(records []model.Record, now time.Time, p Policy) []Insight {
	type entry struct {
		id  string
		due time.Time
	}
	bands := make(map[string][]entry)
	meta := make(map[string]deadlineBand)

	for i := range records {
		r := &records[i]
		if r.DueDate.IsZero() || r.IsClosed() {
			continue
		}
		days := DaysUntil(now, r.DueDate)
		// A deadline that passed earlier today is overdue, as in SLAStatus.
		if days == 0 && r.DueDate.Before(now) {
			days = -1
		}
		if days > p.LookaheadDays {
			continue
		}
		b := p.bandFor(days)
		bands[b.key] = append(bands[b.key], entry{r.ID, r.DueDate})
		meta[b.key] = b
	}

	var out []Insight
	for _, key := range []string{"overdue", "imminent", "soon", "upcoming"} {
		entries := bands[key]
		if len(entries) == 0 {
			continue
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].due.Before(entries[j].due) })
		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.id
		}
		b := meta[key]
		in := newInsight(KindPrediction, DetectorDeadline, key, b.severity, b.confidence)
		in.Title = fmt.Sprintf("%d items %s", len(ids), b.label)
		in.Description = fmt.Sprintf("Next deadline: %s (%s).", ids[0], entries[0].due.Format("02/01/2006"))
		in.RecordIDs = ids
		in.ProjectedAt = entries[0].due
		out = append(out, in)
	}
	return out
}

var (
	blockageStatuses = []string{"blocked", "bloque", "bloqué"}
	blockageWords    = []string{"blocked", "blocage", "blockage", "bloque", "bloqué", "blocking"}
)

// IsBlockage reports whether an alert describes a blockage.
func IsBlockage(r *model.Record) bool {
	for _, s := range blockageStatuses {
		if r.Status == s {
			return true
		}
	}
	for _, w := range blockageWords {
		if strings.Contains(r.Category, w) {
			return true
		}
	}
	return false
}

// PredictRecurringBlockages projects the next blockage for every bureau whose
// blockage alerts reach the recurrence threshold. The projected date is the
// latest occurrence plus the configured offset.
func PredictRecurringBlockages(alerts []model.Record, p Policy) []Insight {
	type occurrences struct {
		ids    []string
		latest time.Time
	}
	byBureau := make(map[string]*occurrences)
	for i := range alerts {
		a := &alerts[i]
		if a.Kind != model.KindAlert || a.Bureau == "" || !IsBlockage(a) {
			continue
		}
		o, ok := byBureau[a.Bureau]
		if !ok {
			o = &occurrences{}
			byBureau[a.Bureau] = o
		}
		o.ids = append(o.ids, a.ID)
		if a.Timestamp.After(o.latest) {
			o.latest = a.Timestamp
		}
	}

	bureaus := make([]string, 0, len(byBureau))
	for b := range byBureau {
		bureaus = append(bureaus, b)
	}
	sort.Strings(bureaus)

	var out []Insight
	for _, b := range bureaus {
		o := byBureau[b]
		count := len(o.ids)
		if count < p.RecurrenceThreshold || o.latest.IsZero() {
			continue
		}
		sev := model.SeverityMedium
		if count >= 2*p.RecurrenceThreshold {
			sev = model.SeverityHigh
		}
		conf := p.RecurrenceBaseConf + p.RecurrenceStepConf*float64(count)
		if conf > p.RecurrenceMaxConf {
			conf = p.RecurrenceMaxConf
		}
		projected := o.latest.AddDate(0, 0, p.RecurrenceOffsetDays)
		in := newInsight(KindPrediction, DetectorRecurringBlockage, b, sev, conf)
		in.Title = fmt.Sprintf("Likely new blockage in %s", b)
		in.Description = fmt.Sprintf("%d blockages recorded; next expected around %s.", count, projected.Format("02/01/2006"))
		in.RecordIDs = o.ids
		in.Bureau = b
		in.ProjectedAt = projected
		out = append(out, in)
	}
	return out
}
