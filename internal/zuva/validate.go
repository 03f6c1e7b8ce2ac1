package zuva

import (
	"fmt"
	"regexp"
	"strings"
)

// fieldIDPattern is the canonical 8-4-4-4-12 textual UUID form. The version nibble
// is not enforced; provider field ids are not all version 4.
var fieldIDPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// IsFieldID reports whether id has the provider's field id shape
func IsFieldID(id string) bool {
	return fieldIDPattern.MatchString(id)
}

// SummarizeIDs lists at most limit ids, noting how many were left out
func SummarizeIDs(ids []string, limit int) string {
	if len(ids) <= limit {
		return strings.Join(ids, ", ")
	}
	return fmt.Sprintf("%s (and %d more)", strings.Join(ids[:limit], ", "), len(ids)-limit)
}
