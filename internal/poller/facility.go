package poller

import (
	"fmt"
	"sort"
	"strings"
)

// ResolveFacility picks the facility to target from the appointment page's
// options. A configured ID must exist among the options. Without
// configuration a lone option is adopted automatically; anything else needs
// the operator to choose, so the error lists what is available.
func ResolveFacility(configured string, options map[string]string) (string, error) {
	if configured != "" {
		if len(options) == 0 {
			return configured, nil
		}
		if _, ok := options[configured]; ok {
			return configured, nil
		}
		return "", fmt.Errorf("facility %s not offered, available: %s", configured, formatOptions(options))
	}
	switch len(options) {
	case 0:
		return "", fmt.Errorf("no facilities offered and none configured")
	case 1:
		for id := range options {
			return id, nil
		}
	}
	return "", fmt.Errorf("multiple facilities offered, set one of: %s", formatOptions(options))
}

func formatOptions(options map[string]string) string {
	ids := make([]string, 0, len(options))
	for id := range options {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s (%s)", id, options[id]))
	}
	return strings.Join(parts, ", ")
}
