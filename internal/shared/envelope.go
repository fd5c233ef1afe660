package shared

// Response is the JSON envelope every stats and ledger endpoint returns.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK wraps data in a successful envelope.
func OK[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: &data}
}

// Fail builds a failed envelope carrying a user-facing message.
func Fail[T any](message string) Response[T] {
	return Response[T]{Success: false, Message: message}
}
