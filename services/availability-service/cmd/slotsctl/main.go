package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/md-rashed-zaman/slotengine/libs/config"
	"github.com/md-rashed-zaman/slotengine/libs/grpcx"
	"github.com/md-rashed-zaman/slotengine/libs/runtime"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/grpcserver"
)

type availabilityClient interface {
	GetSlots(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetAvailability(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ServicesAt(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// Usage: slotsctl [slots|availability|services-at] key=value...
//
// Keys are the request fields of the gRPC API, for example
// professional_id=pro-1 date=2024-03-04 service_id=cut.
func main() {
	logger := runtime.NewLogger("slotsctl")
	if err := config.LoadDotEnv(); err != nil {
		logger.Debug("dotenv not loaded", "err", err)
	}
	addr := config.String("AVAILABILITY_GRPC_ADDR", "localhost:9095")
	timeout, err := config.Duration("SLOTSCTL_TIMEOUT", 5*time.Second)
	if err != nil {
		logger.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: timeout})
	if err != nil {
		logger.Error("dial availability service", "addr", addr, "err", err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	if err := run(ctx, grpcserver.NewClient(conn), os.Args[1:], os.Stdout); err != nil {
		logger.Error("request failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client availabilityClient, args []string, w io.Writer) error {
	if len(args) == 0 {
		return errors.New("missing command")
	}
	in, err := requestFields(args[1:])
	if err != nil {
		return err
	}

	var out *structpb.Struct
	switch args[0] {
	case "slots":
		out, err = client.GetSlots(ctx, in)
	case "availability":
		out, err = client.GetAvailability(ctx, in)
	case "services-at":
		out, err = client.ServicesAt(ctx, in)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		return err
	}

	raw, err := protojson.MarshalOptions{Multiline: true}.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

func requestFields(pairs []string) (*structpb.Struct, error) {
	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		fields[k] = v
	}
	return structpb.NewStruct(fields)
}
