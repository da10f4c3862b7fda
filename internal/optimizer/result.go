package optimizer

// Result carries either a value or the fault that prevented producing it.
type Result[T any] struct {
	Value T
	Err   error
}

func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

func Try[T any](v T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Ok(v)
}

// OrElse returns the value, or fallback when the result holds a fault.
// onFault, if non-nil, observes the fault before the fallback is used.
func (r Result[T]) OrElse(fallback T, onFault func(error)) T {
	if r.Err == nil {
		return r.Value
	}
	if onFault != nil {
		onFault(r.Err)
	}
	return fallback
}
