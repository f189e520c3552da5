package domain

import (
	"slices"

	"github.com/google/uuid"
)

// Identifier prefixes.
const (
	PrefixJob         = "guild_job"
	PrefixContract    = "guild_contract"
	PrefixMilestone   = "milestone"
	PrefixTransaction = "transaction"
	PrefixWorkshop    = "workshop"
)

// NewID returns prefix_<uuidv7>. UUIDv7 keeps ids time ordered.
func NewID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "_" + id.String()
}

// AddToSet appends v unless already present and reports whether it was added.
func AddToSet(set []string, v string) ([]string, bool) {
	if slices.Contains(set, v) {
		return set, false
	}
	return append(set, v), true
}

// Dedupe keeps the first occurrence of each non-empty value.
func Dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		out, _ = AddToSet(out, v)
	}
	return out
}

func SortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	slices.Sort(out)
	return out
}
