// Package classify holds the pure classification and redaction rules applied
// to every audit event before persistence. No dependencies beyond the domain
// model; everything here must stay deterministic so records are reproducible.
package classify

import (
	"fmt"
	"sort"
	"strings"

	"starline/internal/audit"
)

// Mask is the fixed redaction marker written in place of sensitive values.
const Mask = "***MASKED***"

// tierByResource is the static lookup from resource type to sensitivity tier.
// Unknown resource types classify as general.
var tierByResource = map[string]audit.Classification{
	"client":          audit.ClassificationPHI,
	"vitals":          audit.ClassificationPHI,
	"medication":      audit.ClassificationPHI,
	"incident_report": audit.ClassificationPHI,
	"health_record":   audit.ClassificationPHI,
	"phi_access":      audit.ClassificationPHI,

	"user":    audit.ClassificationPII,
	"staff":   audit.ClassificationPII,
	"contact": audit.ClassificationPII,

	"billing": audit.ClassificationFinancial,
	"payment": audit.ClassificationFinancial,
	"invoice": audit.ClassificationFinancial,

	"organization": audit.ClassificationAdministrative,
	"role":         audit.ClassificationAdministrative,
	"permission":   audit.ClassificationAdministrative,
}

// sensitiveFields is the denylist of field names always redacted when masking
// is enabled, regardless of resource type.
var sensitiveFields = []string{
	"password", "ssn", "credit_card", "bank_account", "api_key", "token",
}

// Classify maps a resource type to its sensitivity tier.
func Classify(resourceType string) audit.Classification {
	if tier, ok := tierByResource[strings.ToLower(resourceType)]; ok {
		return tier
	}
	return audit.ClassificationGeneral
}

// ConsentRequired reports whether the resource type requires a consent check
// when PHI is touched.
func ConsentRequired(resourceType string) bool {
	switch strings.ToLower(resourceType) {
	case "client", "vitals", "medication", "incident_report":
		return true
	}
	return false
}

// MaskValues returns a copy of values with every denylisted field replaced by
// the redaction marker. Masking is idempotent: a value already masked stays
// the marker. A nil map returns nil.
func MaskValues(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	masked := make(map[string]any, len(values))
	for k, v := range values {
		masked[k] = v
	}
	for _, field := range sensitiveFields {
		if _, ok := masked[field]; ok {
			masked[field] = Mask
		}
	}
	return masked
}

// Summarize produces the deterministic one-line change description stored on
// every record. For updates it lists "field: old → new" for every field
// present in both snapshots with unequal values, in field-name order.
func Summarize(action audit.Action, prior, next map[string]any) string {
	switch action {
	case audit.ActionCreate:
		return "Record created"
	case audit.ActionDelete:
		return "Record deleted"
	case audit.ActionUpdate:
		if prior != nil && next != nil {
			changes := diffChanges(prior, next)
			if len(changes) == 0 {
				return "No changes detected"
			}
			return strings.Join(changes, "; ")
		}
	}
	return fmt.Sprintf("Performed %s action", action)
}

func diffChanges(prior, next map[string]any) []string {
	keys := make([]string, 0, len(next))
	for k := range next {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var changes []string
	for _, k := range keys {
		oldV, ok := prior[k]
		if !ok {
			continue
		}
		newV := next[k]
		if fmt.Sprint(oldV) == fmt.Sprint(newV) {
			continue
		}
		changes = append(changes, fmt.Sprintf("%s: %v → %v", k, oldV, newV))
	}
	return changes
}
