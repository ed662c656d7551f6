// Package logging carries correlation fields through a context so that every
// log line about one alert can be joined back together.
package logging

import "context"

const (
	TraceIDKey     = "trace_id"
	JobIDKey       = "job_id"
	ServiceNameKey = "service_name"
)

type fieldsKey struct{}

// correlation is copied on every With* call; stored values are never mutated.
type correlation struct {
	traceID string
	jobID   string
	service string
}

func from(ctx context.Context) correlation {
	c, _ := ctx.Value(fieldsKey{}).(correlation)
	return c
}

func with(ctx context.Context, set func(*correlation)) context.Context {
	c := from(ctx)
	set(&c)
	return context.WithValue(ctx, fieldsKey{}, c)
}

// WithTraceID tags ctx with the request or trigger that raised the alert.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, func(c *correlation) { c.traceID = traceID })
}

// WithJobID tags ctx with the dispatch job being delivered.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return with(ctx, func(c *correlation) { c.jobID = jobID })
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return with(ctx, func(c *correlation) { c.service = serviceName })
}

func GetTraceID(ctx context.Context) string     { return from(ctx).traceID }
func GetJobID(ctx context.Context) string       { return from(ctx).jobID }
func GetServiceName(ctx context.Context) string { return from(ctx).service }

// GetLogFields returns the non-empty correlation fields as zap key/value pairs.
func GetLogFields(ctx context.Context) []interface{} {
	c := from(ctx)
	fields := make([]interface{}, 0, 6)
	for _, kv := range [...]struct{ key, value string }{
		{TraceIDKey, c.traceID},
		{JobIDKey, c.jobID},
		{ServiceNameKey, c.service},
	} {
		if kv.value != "" {
			fields = append(fields, kv.key, kv.value)
		}
	}
	return fields
}
