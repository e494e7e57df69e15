package ingest

// CategoryFilter decides which category labels the parser keeps.
//
// The zero value accepts every label.
type CategoryFilter struct {
	allowed map[string]struct{}
}

// FilterNone returns a filter that accepts every label.
func FilterNone() CategoryFilter {
	return CategoryFilter{}
}

// FilterAllowList returns a filter that accepts a label only when its
// normalised form matches the normalised form of one of labels.
func FilterAllowList(labels ...string) CategoryFilter {
	allowed := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		allowed[Normalize(l)] = struct{}{}
	}
	return CategoryFilter{allowed: allowed}
}

// Allows reports whether label passes the filter.
func (f CategoryFilter) Allows(label string) bool {
	if f.allowed == nil {
		return true
	}
	_, ok := f.allowed[Normalize(label)]
	return ok
}

// Restrictive reports whether the filter is an allow-list.
func (f CategoryFilter) Restrictive() bool {
	return f.allowed != nil
}
