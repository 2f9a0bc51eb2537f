package middleware

// contextKey is a private type for request-scoped context keys.
type contextKey string

// RequestIDKey is the context key carrying the per-delivery request ID.
const RequestIDKey contextKey = "request_id"
