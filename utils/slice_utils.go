package utils

// StringSliceDedup drops repeated items, the first occurrence keeps its place.
func StringSliceDedup(items []string) []string {
	m := make(map[string]struct{}, len(items))
	rs := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := m[item]; ok {
			continue
		}
		m[item] = struct{}{}
		rs = append(rs, item)
	}
	return rs
}
