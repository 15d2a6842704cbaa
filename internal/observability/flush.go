package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry flushes telemetry buffers during graceful shutdown, after
// in-flight requests and the history queue have drained. Metrics are
// pull-based so only the log buffer needs a flush; ctx is accepted for
// symmetry with the rest of the shutdown sequence.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	_ = ctx
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}
