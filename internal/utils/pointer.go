package utils

// ValueOr dereferences v, or returns fallback when the backend left it out
func ValueOr[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}
