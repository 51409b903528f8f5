// Package textutil holds small string helpers shared by platform packages.
package textutil

import "strings"

// NormalizeStringMap trims keys and values and drops entries whose key is blank.
// Values longer than maxValue runes are cut; maxValue <= 0 keeps them whole.
// A nil result means nothing survived.
func NormalizeStringMap(values map[string]string, maxValue int) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if maxValue > 0 {
			if runes := []rune(value); len(runes) > maxValue {
				value = string(runes[:maxValue])
			}
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
