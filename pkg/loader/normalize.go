package loader

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/vanderheijden86/bmo/pkg/model"
)

var (
	idKeys          = []string{"id", "_id", "reference", "ref", "code", "numero"}
	titleKeys       = []string{"title", "name", "label", "activity", "activite", "activité", "subject", "objet", "debiteur", "debtor", "intitule"}
	statusKeys      = []string{"status", "statut", "state", "etat"}
	severityKeys    = []string{"severity", "priority", "priorite", "priorité", "level", "niveau", "urgency"}
	criticalityKeys = []string{"criticality", "criticite", "criticité"}
	categoryKeys    = []string{"category", "categorie", "catégorie", "type", "domain", "domaine"}
	bureauKeys      = []string{"bureau", "department", "departement", "service", "owner", "team"}
	timestampKeys   = []string{"timestamp", "createdAt", "created_at", "date", "dateCreation", "date_creation", "openedAt"}
	dueKeys         = []string{"dueDate", "due_date", "deadline", "echeance", "échéance", "slaDue", "sla_due", "dateEcheance"}
	roleKeys        = []string{"raci", "roles", "assignments", "matrix"}
	daysOverdueKeys = []string{"daysOverdue", "days_overdue", "joursRetard", "jours_retard", "retard"}
	kindKeys        = []string{"kind", "recordType", "record_type"}
)

var valueKeys = map[model.Kind][]string{
	model.KindEvaluation: {"score", "note", "rating", "value"},
	model.KindCreance:    {"amount", "montant", "montantDu", "amountDue", "value"},
	model.KindTicket:     {"value", "slaHours", "sla_hours", "hours"},
	model.KindAlert:      {"impact", "value", "amount", "montant"},
	model.KindRACI:       {"value", "weight", "poids"},
	model.KindStat:       {"value", "count", "total"},
}

var secondaryKeys = map[model.Kind][]string{
	model.KindCreance:    {"recovered", "amountRecovered", "montantRecouvre", "montant_recouvre", "paid"},
	model.KindEvaluation: {"maxScore", "max_score", "bareme"},
	model.KindTicket:     {"responseHours", "response_hours"},
}

// consumed holds every key Normalize maps to a dedicated field; the rest
// land in Attributes when scalar.
var consumed = func() map[string]bool {
	m := make(map[string]bool)
	for _, group := range [][]string{idKeys, titleKeys, statusKeys, severityKeys, criticalityKeys,
		categoryKeys, bureauKeys, timestampKeys, dueKeys, roleKeys, kindKeys} {
		for _, k := range group {
			m[k] = true
		}
	}
	for _, keys := range valueKeys {
		for _, k := range keys {
			m[k] = true
		}
	}
	for _, keys := range secondaryKeys {
		for _, k := range keys {
			m[k] = true
		}
	}
	return m
}()

// Normalize maps one arbitrary JSON object into a strict Record. Missing or
// malformed fields take their zero value. It reports false only when no
// identifier can be found.
func Normalize(raw map[string]any, module model.Module, kind model.Kind) (model.Record, bool) {
	id := firstString(raw, idKeys...)
	if id == "" {
		return model.Record{}, false
	}

	if kind == "" {
		if k := firstString(raw, kindKeys...); k != "" {
			kind = model.Kind(strings.ToLower(k))
		} else {
			kind = model.DefaultKind(module)
		}
	}

	rec := model.Record{
		ID:          id,
		Module:      module,
		Kind:        kind,
		Title:       firstString(raw, titleKeys...),
		Status:      NormalizeStatus(firstString(raw, statusKeys...)),
		Severity:    model.ParseSeverity(firstString(raw, severityKeys...)),
		Criticality: model.ParseSeverity(firstString(raw, criticalityKeys...)),
		Category:    strings.ToLower(firstString(raw, categoryKeys...)),
		Bureau:      firstString(raw, bureauKeys...),
		Value:       firstFloat(raw, valueKeysFor(kind)...),
		Secondary:   firstFloat(raw, secondaryKeys[kind]...),
		Timestamp:   firstTime(raw, timestampKeys...),
		DueDate:     firstTime(raw, dueKeys...),
		Assignments: assignments(raw),
	}
	if rec.Title == "" {
		rec.Title = rec.ID
	}

	for _, k := range daysOverdueKeys {
		if v, ok := raw[k]; ok {
			setAttr(&rec, model.AttrDaysOverdue, strconv.Itoa(int(toFloat(v))))
			break
		}
	}

	for k, v := range raw {
		if consumed[k] {
			continue
		}
		if s, ok := scalarString(v); ok {
			setAttr(&rec, k, s)
		}
	}
	return rec, true
}

func valueKeysFor(kind model.Kind) []string {
	if keys, ok := valueKeys[kind]; ok {
		return keys
	}
	return []string{"value"}
}

func setAttr(rec *model.Record, k, v string) {
	if rec.Attributes == nil {
		rec.Attributes = make(map[string]string)
	}
	rec.Attributes[k] = v
}

// NormalizeStatus lowercases and joins words with underscores.
func NormalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if s, ok := scalarString(v); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func scalarString(v any) (string, bool) {
	switch v.(type) {
	case map[string]any, []any, nil:
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	return s, true
}

func firstFloat(raw map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			if f, ok := parseFloat(v); ok {
				return f
			}
		}
	}
	return 0
}

func toFloat(v any) float64 {
	f, _ := parseFloat(v)
	return f
}

// parseFloat coerces numbers and numeric strings, including French
// formatting ("1 234,50"). NaN and infinities are rejected.
func parseFloat(v any) (float64, bool) {
	if _, ok := v.(bool); ok {
		return 0, false
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(s)
		if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
			s = strings.Replace(s, ",", ".", 1)
		}
		v = s
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func firstTime(raw map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		var t time.Time
		switch tv := v.(type) {
		case string:
			t = ParseDate(tv)
		case float64, int, int64, uint64, float32:
			t = fromEpoch(int64(toFloat(tv)))
		}
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

// assignments reads RACI roles from a bureau->role map, a role->bureaus map,
// or a list of {bureau, role} objects.
func assignments(raw map[string]any) []model.Assignment {
	for _, k := range roleKeys {
		switch v := raw[k].(type) {
		case map[string]any:
			return assignmentsFromMap(v)
		case []any:
			return assignmentsFromList(v)
		}
	}
	return nil
}

func assignmentsFromMap(m map[string]any) []model.Assignment {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []model.Assignment
	for _, k := range keys {
		if role, ok := model.ParseRole(k); ok {
			for _, bureau := range stringList(m[k]) {
				out = append(out, model.Assignment{Bureau: bureau, Role: role})
			}
			continue
		}
		for _, r := range stringList(m[k]) {
			if role, ok := model.ParseRole(r); ok {
				out = append(out, model.Assignment{Bureau: k, Role: role})
			}
		}
	}
	return out
}

func assignmentsFromList(list []any) []model.Assignment {
	var out []model.Assignment
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		bureau := firstString(obj, "bureau", "department", "service", "participant", "name")
		role, ok := model.ParseRole(firstString(obj, "role", "raci", "type"))
		if bureau == "" || !ok {
			continue
		}
		out = append(out, model.Assignment{Bureau: bureau, Role: role})
	}
	return out
}

func stringList(v any) []string {
	switch tv := v.(type) {
	case []any:
		out := make([]string, 0, len(tv))
		for _, item := range tv {
			if s, ok := scalarString(item); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	default:
		if s, ok := scalarString(tv); ok && strings.TrimSpace(s) != "" {
			return []string{strings.TrimSpace(s)}
		}
	}
	return nil
}

// statRecords flattens a stats object (numeric fields) into stat records,
// sorted by key so ordering is stable across fetches.
func statRecords(obj map[string]any, module model.Module) []model.Record {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []model.Record
	for _, k := range keys {
		f, ok := parseFloat(obj[k])
		if !ok {
			continue
		}
		out = append(out, model.Record{
			ID:     fmt.Sprintf("%s.%s", module, k),
			Module: module,
			Kind:   model.KindStat,
			Title:  k,
			Value:  f,
		})
	}
	return out
}
