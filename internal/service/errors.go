package service

import (
	"errors"

	"github.com/festivo/ops-service/internal/lifecycle"
	apperrors "github.com/festivo/ops-service/pkg/util"
)

// mapTransitionErr converts lifecycle rejections into validation-class
// domain errors so handlers return 4xx instead of 500.
func mapTransitionErr(err error) error {
	if err == nil {
		return nil
	}
	var invalid *lifecycle.InvalidTransitionError
	if errors.As(err, &invalid) {
		return apperrors.NewInvalidTransition(invalid)
	}
	var terminal *lifecycle.TerminalStateError
	if errors.As(err, &terminal) {
		return apperrors.NewTerminalState(terminal)
	}
	return apperrors.MapError(err)
}
