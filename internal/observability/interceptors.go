package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speech-scoring-service/internal/observability/logging"
)

// UnaryServerInterceptor logs every unary gRPC call with its status code.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	log := logging.WithComponent("grpc")
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(log, info.FullMethod, err, time.Since(start)).Msg("gRPC unary call")
		return resp, err
	}
}

// StreamServerInterceptor logs every gRPC stream (health Watch) once it ends.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	log := logging.WithComponent("grpc")
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(log, info.FullMethod, err, time.Since(start)).Msg("gRPC stream completed")
		return err
	}
}

// logCall picks the log level from the status code.
func logCall(log zerolog.Logger, method string, err error, d time.Duration) *zerolog.Event {
	st, _ := status.FromError(err)
	var ev *zerolog.Event
	switch st.Code() {
	case codes.OK, codes.Canceled, codes.NotFound:
		ev = log.Debug()
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		ev = log.Error().Err(err)
	default:
		ev = log.Warn().Err(err)
	}
	return ev.
		Str("method", method).
		Str("code", st.Code().String()).
		Dur("duration", d)
}
