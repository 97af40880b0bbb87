package store

// Kind is the closed set of value shapes the merge algorithm dispatches on.
type Kind int

const (
	KindScalar Kind = iota
	KindMapping
	KindSequence
)

func KindOf(value any) Kind {
	switch value.(type) {
	case map[string]any:
		return KindMapping
	case []any:
		return KindSequence
	default:
		return KindScalar
	}
}

// Merge deep-merges patch into target and returns the result without
// mutating either argument. Keys absent from the patch are preserved; when
// both sides hold a mapping the merge recurses; any other non-nil patch value
// overwrites. A nil patch value is skipped — the store has no tombstones, so
// removing a key takes a full-document replace, never a merge.
func Merge(target, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(target)+len(patch))
	for key, value := range target {
		merged[key] = value
	}
	for key, patchValue := range patch {
		if patchValue == nil {
			continue
		}
		if KindOf(patchValue) == KindMapping {
			if existing, ok := merged[key]; ok && KindOf(existing) == KindMapping {
				merged[key] = Merge(existing.(map[string]any), patchValue.(map[string]any))
				continue
			}
		}
		merged[key] = patchValue
	}
	return merged
}
