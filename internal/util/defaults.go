package util

// Coalesce returns def when v is the zero value of T - otherwise v.
// Shared by option structs whose zero fields mean "use the default".
func Coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
