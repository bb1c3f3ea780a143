package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/identity"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/httputil"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/logger"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	mdAuthorization = "authorization"
	mdRequestID     = "x-request-id"
)

// дефолтный guard, если клиент не прислал deadline
const defaultCallTimeout = 10 * time.Second

func recoveryUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.FromContext(ctx).Error("grpc unary panic",
					slog.String("method", info.FullMethod),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, "internal error")
			}
		}()

		return handler(ctx, req)
	}
}

func deadlineUnaryInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return handler(ctx, req)
	}
}

// requestIDUnaryInterceptor берёт x-request-id из metadata (или выдаёт новый)
// и кладёт в ctx логгер с req_id.
func requestIDUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		reqID := first(md.Get(mdRequestID))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx = httputil.WithRequestID(ctx, reqID)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(slog.String("req_id", reqID)))

		return handler(ctx, req)
	}
}

func loggingUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		lvl := slog.LevelInfo
		switch code {
		case codes.OK:
		case codes.Internal, codes.Unknown:
			lvl = slog.LevelError
		default:
			lvl = slog.LevelWarn
		}
		logger.FromContext(ctx).Log(ctx, lvl, "grpc unary",
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()),
			slog.String("err", errString(err)))

		return resp, err
	}
}

// authUnaryInterceptor: "authorization: Bearer <token>" → identity в ctx.
func authUnaryInterceptor(v identity.Verifier) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		id, err := v.Verify(ctx, bearerFromMD(ctx))
		if err != nil {
			return nil, mapErr(err)
		}
		return handler(identity.WithIdentity(ctx, id), req)
	}
}

func bearerFromMD(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	auth := first(md.Get(mdAuthorization))
	if len(auth) <= 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	msg := domain.PublicMessage(err)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, msg)
	case errors.Is(err, domain.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, msg)
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, msg)
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, msg)
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.Aborted, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
