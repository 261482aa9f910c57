package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// isRACI reports whether r participates in responsibility analysis.
func isRACI(r *model.Record) bool {
	return r.Kind == model.KindRACI || len(r.Assignments) > 0
}

func raciRecords(records []model.Record) []*model.Record {
	out := make([]*model.Record, 0, len(records))
	for i := range records {
		if isRACI(&records[i]) {
			out = append(out, &records[i])
		}
	}
	return out
}

// BureauLoad is the participation of one bureau across RACI records.
type BureauLoad struct {
	Bureau    string   `json:"bureau"`
	Active    int      `json:"active"`
	Total     int      `json:"total"`
	Rate      float64  `json:"rate"`
	RecordIDs []string `json:"record_ids,omitempty"`
}

// ParticipationRates computes, for every bureau seen in any assignment or as
// an owner, the share of RACI records where it holds an active role.
// Results are sorted by bureau name.
func ParticipationRates(records []model.Record) []BureauLoad {
	rows := raciRecords(records)
	loads := make(map[string]*BureauLoad)
	get := func(b string) *BureauLoad {
		if l, ok := loads[b]; ok {
			return l
		}
		l := &BureauLoad{Bureau: b}
		loads[b] = l
		return l
	}

	for _, r := range rows {
		if r.Bureau != "" {
			get(r.Bureau)
		}
		for _, a := range r.Assignments {
			get(a.Bureau)
		}
		for _, b := range r.ActiveBureaus() {
			l := get(b)
			l.Active++
			l.RecordIDs = append(l.RecordIDs, r.ID)
		}
	}

	out := make([]BureauLoad, 0, len(loads))
	for _, l := range loads {
		l.Total = len(rows)
		l.Rate = Rate(l.Active, l.Total)
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bureau < out[j].Bureau })
	return out
}

// DetectLoadDistribution flags bureaus whose participation rate is above the
// overload threshold (high severity above the high threshold) or below the
// underload threshold. Exempt bureaus are never flagged as underloaded.
func DetectLoadDistribution(records []model.Record, p Policy) []Insight {
	var out []Insight
	for _, l := range ParticipationRates(records) {
		switch {
		case l.Rate > p.OverloadThreshold:
			sev := model.SeverityMedium
			if l.Rate > p.HighOverloadThreshold {
				sev = model.SeverityHigh
			}
			in := newInsight(KindAnomaly, DetectorOverload, l.Bureau, sev, p.OverloadConfidence)
			in.Title = fmt.Sprintf("%s is overloaded", l.Bureau)
			in.Description = fmt.Sprintf("%s holds an active role in %d of %d activities (%.0f%%).",
				l.Bureau, l.Active, l.Total, l.Rate*100)
			in.Bureau = l.Bureau
			in.RecordIDs = l.RecordIDs
			out = append(out, in)
		case l.Rate < p.UnderloadThreshold && !p.IsExempt(l.Bureau):
			in := newInsight(KindOptimization, DetectorUnderload, l.Bureau, model.SeverityLow, p.UnderloadConfidence)
			in.Title = fmt.Sprintf("%s is underused", l.Bureau)
			in.Description = fmt.Sprintf("%s holds an active role in %d of %d activities (%.0f%%). Consider rebalancing responsibilities.",
				l.Bureau, l.Active, l.Total, l.Rate*100)
			in.Bureau = l.Bureau
			in.RecordIDs = l.RecordIDs
			out = append(out, in)
		}
	}
	return out
}

// DetectMissingAccountable flags critical RACI records with no Accountable.
func DetectMissingAccountable(records []model.Record, p Policy) []Insight {
	var out []Insight
	for _, r := range raciRecords(records) {
		if !r.IsCritical() || len(r.BureausWithRole(model.RoleAccountable)) > 0 {
			continue
		}
		in := newInsight(KindRisk, DetectorMissingAccountable, r.ID, model.SeverityCritical, p.MissingAccountableConfidence)
		in.Title = fmt.Sprintf("No accountable for critical activity %s", r.ID)
		in.Description = fmt.Sprintf("%q is critical but no bureau holds the Accountable role.", r.Title)
		in.RecordIDs = []string{r.ID}
		in.Bureau = r.Bureau
		out = append(out, in)
	}
	return out
}

// DetectMultipleAccountable flags records where more than one distinct bureau
// holds the Accountable role.
func DetectMultipleAccountable(records []model.Record, p Policy) []Insight {
	var out []Insight
	for _, r := range raciRecords(records) {
		accountable := distinct(r.BureausWithRole(model.RoleAccountable))
		if len(accountable) <= 1 {
			continue
		}
		in := newInsight(KindRisk, DetectorMultipleAccountable, r.ID, model.SeverityHigh, p.MultipleAccountableConfidence)
		in.Title = fmt.Sprintf("Multiple accountable on %s", r.ID)
		in.Description = fmt.Sprintf("%q has %d accountable bureaus (%s); exactly one is allowed.",
			r.Title, len(accountable), strings.Join(accountable, ", "))
		in.RecordIDs = []string{r.ID}
		in.Bureau = r.Bureau
		out = append(out, in)
	}
	return out
}

// DetectClusters groups RACI records by category and reports large groups
// that use few distinct roles, which usually means the activities could be
// handled as one batch.
func DetectClusters(records []model.Record, p Policy) []Insight {
	type group struct {
		category string
		ids      []string
		roles    map[model.Role]bool
	}
	var order []string
	groups := make(map[string]*group)
	for _, r := range raciRecords(records) {
		if r.Category == "" {
			continue
		}
		g, ok := groups[r.Category]
		if !ok {
			g = &group{category: r.Category, roles: make(map[model.Role]bool)}
			groups[r.Category] = g
			order = append(order, r.Category)
		}
		g.ids = append(g.ids, r.ID)
		for _, a := range r.Assignments {
			g.roles[a.Role] = true
		}
	}

	var out []Insight
	for _, cat := range order {
		g := groups[cat]
		if len(g.ids) <= p.ClusterMinSize || len(g.roles) >= p.ClusterMaxRoles {
			continue
		}
		in := newInsight(KindOptimization, DetectorCluster, cat, model.SeverityMedium, p.ClusterConfidence)
		in.Title = fmt.Sprintf("Consolidate %d %s activities", len(g.ids), cat)
		in.Description = fmt.Sprintf("%d activities in %q use only %d distinct roles: %s.",
			len(g.ids), cat, len(g.roles), SampleList(g.ids, p.ClusterSample))
		in.RecordIDs = g.ids
		out = append(out, in)
	}
	return out
}

// SampleList joins the first n items and appends the remainder count.
func SampleList(items []string, n int) string {
	if n <= 0 || len(items) <= n {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(items[:n], ", "), len(items)-n)
}

func distinct(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
