package main

import (
	"context"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/md-rashed-zaman/slotengine/libs/config"
	"github.com/md-rashed-zaman/slotengine/libs/grpcx"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/grpcserver"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, svc grpcserver.AvailabilityService) error {
	port, err := config.Port("GRPC_PORT", "9095")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcx.UnaryServerRequestIDInterceptor(),
			grpcx.UnaryServerLogInterceptor(logger),
			grpcx.UnaryServerRecoverInterceptor(logger),
		),
	)
	grpcserver.Register(srv, svc, logger)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	return nil
}
