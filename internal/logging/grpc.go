package logging

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor attaches logger to the call context and logs each
// completed call.
func UnaryServerInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		child := logger.With().Str(FieldMethod, info.FullMethod).Logger()

		resp, err := handler(WithLogger(ctx, child), req)

		child.Debug().
			Str("code", status.Code(err).String()).
			Float64(FieldLatency, float64(time.Since(start).Milliseconds())).
			Msg("grpc call completed")
		return resp, err
	}
}
