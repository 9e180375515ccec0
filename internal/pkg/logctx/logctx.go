package logctx

import (
	"context"

	"go.uber.org/zap"
)

type processorKeyType struct{}
type instanceKeyType struct{}
type messageKeyType struct{}

var processorKey = processorKeyType{}
var instanceKey = instanceKeyType{}
var messageKey = messageKeyType{}

// WithProcessor tags ctx with the processor definition name
func WithProcessor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, processorKey, name)
}

func Processor(ctx context.Context) (string, bool) {
	return stringValue(ctx, processorKey)
}

// WithInstance tags ctx with the processor instance id
func WithInstance(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, instanceKey, id)
}

func Instance(ctx context.Context) (string, bool) {
	return stringValue(ctx, instanceKey)
}

// WithMessageID tags ctx with the id of the queue message being handled
func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, messageKey, id)
}

func MessageID(ctx context.Context) (string, bool) {
	return stringValue(ctx, messageKey)
}

// Fields returns the tags present on ctx as zap fields
func Fields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if v, ok := Processor(ctx); ok {
		fields = append(fields, zap.String("processor", v))
	}
	if v, ok := Instance(ctx); ok {
		fields = append(fields, zap.String("instance", v))
	}
	if v, ok := MessageID(ctx); ok {
		fields = append(fields, zap.String("message_id", v))
	}
	return fields
}

func stringValue(ctx context.Context, key any) (string, bool) {
	v := ctx.Value(key)
	if v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return "", false
}
