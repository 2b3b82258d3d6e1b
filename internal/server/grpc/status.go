package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/benchboard/internal/api/intakev1"
	"github.com/and161185/benchboard/internal/errs"
)

var kindCodes = map[string]codes.Code{
	"validation_failed":   codes.InvalidArgument,
	"unauthorized":        codes.Unauthenticated,
	"rate_limited":        codes.ResourceExhausted,
	"not_found":           codes.NotFound,
	"conflict":            codes.FailedPrecondition,
	"already_exists":      codes.AlreadyExists,
	"storage_unavailable": codes.Unavailable,
}

// status maps a service error to a gRPC status carrying an ErrorInfo detail.
// Internal and storage failures are logged here and reported without their cause.
func (s *Server) status(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}

	kind := errs.Kind(err)
	code, ok := kindCodes[kind]
	msg := err.Error()
	switch {
	case !ok:
		code = codes.Internal
		msg = "internal error"
		s.log.Error("request failed", zap.Error(err))
	case code == codes.Unavailable:
		msg = errs.ErrStorageUnavailable.Error()
		s.log.Warn("storage unavailable", zap.Error(err))
	}

	info := &errdetails.ErrorInfo{
		Reason:   strings.ToUpper(kind),
		Domain:   intakev1.ErrorDomain,
		Metadata: map[string]string{"retryable": strconv.FormatBool(errs.Retryable(err))},
	}
	if v := errs.Violations(err); len(v) > 0 {
		if b, jerr := json.Marshal(v); jerr == nil {
			info.Metadata["violations"] = string(b)
		}
	}
	st := status.New(code, msg)
	if withInfo, derr := st.WithDetails(info); derr == nil {
		st = withInfo
	}
	return st.Err()
}
