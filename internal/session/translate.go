package session

import (
	"context"
	"errors"

	"github.com/mmcdole/mediasync/internal/domain"
)

// Translate converts a transport failure from op into an *domain.OperationError.
// An authorization failure tears the session down whatever op was; onError,
// when given, runs for every failure.
func (m *Manager) Translate(op string, err error, onError func()) error {
	if err == nil {
		return nil
	}

	var opErr *domain.OperationError
	if errors.As(err, &opErr) {
		if onError != nil {
			onError()
		}
		return opErr
	}

	opErr = &domain.OperationError{Op: op, Err: err, Message: err.Error()}

	var reqErr *domain.RequestError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		opErr.Kind = domain.KindTransport
	case errors.As(err, &reqErr):
		opErr.Status = reqErr.Status
		opErr.Message = reqErr.Message
		switch {
		case reqErr.IsAuthFailure():
			opErr.Kind = domain.KindAuth
		case reqErr.Status == 0:
			opErr.Kind = domain.KindTransport
		default:
			opErr.Kind = domain.KindRequest
		}
	default:
		opErr.Kind = domain.KindRequest
	}

	m.logger.Error("operation failed",
		"op", op,
		"kind", opErr.Kind.String(),
		"status", opErr.Status,
		"error", err,
	)

	if opErr.Kind == domain.KindAuth {
		m.logger.Warn("credentials rejected, logging out", "op", op)
		m.ForceLogout()
	}

	if onError != nil {
		onError()
	}

	return opErr
}
