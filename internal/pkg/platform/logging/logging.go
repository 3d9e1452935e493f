// Package logging carries a zerolog.Logger on context.Context, the same
// shape as the teacher's infrastructure/logging, generalized to this
// repo's components instead of one "service" logger.
package logging

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type loggerContextKey struct {
	name string
}

var loggerCtxKey = &loggerContextKey{"logger"}

// New returns a context and root logger carrying service/version fields.
// Callers add component-specific fields with .With() (component, topic,
// ruleId, deviceId, ...) the same way every package under internal/pkg
// already does.
func New(ctx context.Context, serviceName, serviceVersion string) (context.Context, zerolog.Logger) {
	logger := log.With().Str("service", strings.ToLower(serviceName)).Str("version", serviceVersion).Logger()
	return NewContext(ctx, logger), logger
}

func NewContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

func FromContext(ctx context.Context) zerolog.Logger {
	logger, ok := ctx.Value(loggerCtxKey).(zerolog.Logger)
	if !ok {
		return log.Logger
	}
	return logger
}
