package domain

// Callback is a fire-and-forget consumer handle. A nil Callback is valid and
// ignores every value.
type Callback[T any] func(T)

// Emit invokes the callback with v if it is set.
func (cb Callback[T]) Emit(v T) {
	if cb != nil {
		cb(v)
	}
}
