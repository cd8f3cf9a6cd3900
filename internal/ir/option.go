package ir

// Option is an explicit presence/absence result. Entity lookups return an
// Option so handlers branch on presence instead of receiving a zero value
// that looks like a record.
type Option[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, ok: true}
}

// None is the absent value.
func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsSome reports presence.
func (o Option[T]) IsSome() bool {
	return o.ok
}

// OrElse returns the value, or fallback when absent.
func (o Option[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// MapOption applies f when present, else returns fallback. It mirrors the
// "previous value + 1, else 1" style of accumulation handlers use.
func MapOption[T, U any](o Option[T], fallback U, f func(T) U) U {
	if !o.ok {
		return fallback
	}
	return f(o.value)
}
