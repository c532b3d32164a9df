package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// New builds the process logger: a human-friendly development encoder when
// ATRBT_ENV=dev, the production JSON encoder otherwise.
func New() *zap.SugaredLogger {
	var (
		log *zap.Logger
		err error
	)
	opts := []zap.Option{
		zap.AddStacktrace(zap.ErrorLevel),
	}

	if strings.ToLower(os.Getenv("ATRBT_ENV")) == "dev" {
		log, err = zap.NewDevelopment(opts...)
	} else {
		opts = append(opts, zap.Fields(zap.String("ATRBT_ENV", os.Getenv("ATRBT_ENV"))))
		log, err = zap.NewProduction(opts...)
	}
	if err != nil {
		panic(fmt.Errorf("failed to initialize logger: %w", err))
	}

	return log.Sugar()
}

type contextKey struct{}

// ContextKey stores the run-scoped logger in a context.
var ContextKey = contextKey{}

// FromContext returns the logger stored in ctx, or a fresh one.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	log, ok := ctx.Value(ContextKey).(*zap.SugaredLogger)
	if !ok {
		log = New()
		log.Warn("no logger found in ctx - creating new one")
	}
	return log
}

func init() {
	zap.ReplaceGlobals(New().Desugar())
}
