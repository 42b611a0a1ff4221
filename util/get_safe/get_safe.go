package getsafe

// String pulls a string out of a decoded payload, returning "" when the key
// is absent or holds another type. Index backends round-trip metadata through
// JSON, so values come back as map[string]any.
func String(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Metadata pulls a nested object out of a decoded payload.
func Metadata(payload map[string]any, key string) map[string]any {
	if v, ok := payload[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}
