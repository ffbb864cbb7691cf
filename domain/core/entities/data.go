package entities

// Default data applied to freshly created nodes
const (
	DefaultNodeLabel = "New Node"
	DefaultNodeColor = "#3b82f6"
)

// transientDataKeys are UI-only flags that ride along in node data but never
// count as structurally significant: they must not trigger snapshot capture
// or mark a change as broadcast-worthy.
var transientDataKeys = map[string]struct{}{
	"isEditing":  {},
	"isHovered":  {},
	"isResizing": {},
	"selected":   {},
}

// IsTransientKey reports whether a data key is UI-only
func IsTransientKey(key string) bool {
	_, ok := transientDataKeys[key]
	return ok
}

// SignificantPatch reports whether a data patch contains at least one
// non-transient key. Deletions (nil values) count like any other write.
func SignificantPatch(patch map[string]interface{}) bool {
	for key := range patch {
		if !IsTransientKey(key) {
			return true
		}
	}
	return false
}

// copyData returns a shallow copy of a data map. Nested values are treated
// as immutable once stored.
func copyData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
