package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/authgate/internal/errs"
	"go.uber.org/zap"
)

// unavailable logs a storage failure with its context and replaces it with
// errs.ErrUnavailable so no internal detail reaches the caller. Cancellation
// by the caller is not logged as an error.
func unavailable(log *zap.Logger, op string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Debug("storage call aborted", fields...)
		return fmt.Errorf("%w: %w", errs.ErrUnavailable, err)
	}
	log.Error("storage failure", fields...)
	return errs.ErrUnavailable
}
