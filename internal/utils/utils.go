package utils

// Ptr returns a pointer to a copy of v
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *v, or the zero value for a nil pointer
func Deref[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// Strings keeps the string elements of a decoded JSON array, e.g. a "roles" claim
func Strings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
