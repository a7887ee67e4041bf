package report

import (
	"fmt"
	"strings"
)

const listLimit = 5

// FormatList joins up to five items, summarizing the rest as "and N more"
func FormatList(items []string) string {
	if len(items) <= listLimit {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(items[:listLimit], ", "), len(items)-listLimit)
}
