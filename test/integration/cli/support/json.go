package support

import (
	"fmt"
	"strconv"
	"strings"
)

// checkJSONField walks a dotted path such as "pages.1.method" through
// decoded JSON and compares the leaf, formatted with %v, to expected.
func checkJSONField(data any, field, expected string) error {
	current := data
	parts := strings.Split(field, ".")
	for i, part := range parts {
		switch node := current.(type) {
		case map[string]any:
			val, ok := node[part]
			if !ok {
				return fmt.Errorf("field '%s' not found in JSON", strings.Join(parts[:i+1], "."))
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return fmt.Errorf("invalid index '%s' into array of length %d", part, len(node))
			}
			current = node[idx]
		default:
			return fmt.Errorf("cannot navigate into non-container field '%s'", strings.Join(parts[:i], "."))
		}
	}

	actual := fmt.Sprintf("%v", current)
	if actual != expected {
		return fmt.Errorf("field '%s' is '%s', expected '%s'", field, actual, expected)
	}
	return nil
}
