package utils

import "strings"

// MaskSensitiveData returns a copy of data with the values of keysToMask
// replaced, descending into nested objects and arrays of objects.
func MaskSensitiveData(data map[string]any, keysToMask []string, masked string) map[string]any {
	if data == nil {
		return nil
	}
	maskedData := make(map[string]any, len(data))
	for key, value := range data {
		if contains(keysToMask, key) {
			maskedData[key] = masked
			continue
		}
		maskedData[key] = maskValue(value, keysToMask, masked)
	}
	return maskedData
}

func maskValue(value any, keysToMask []string, masked string) any {
	switch v := value.(type) {
	case map[string]any:
		return MaskSensitiveData(v, keysToMask, masked)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = maskValue(item, keysToMask, masked)
		}
		return out
	default:
		return value
	}
}

func contains(slice []string, item string) bool {
	for _, a := range slice {
		if strings.EqualFold(a, item) {
			return true
		}
	}
	return false
}
