package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const detectTimeout = 5 * time.Second

// LandmarkClient asks a remote Face Mesh service for the landmarks of
// encoded frames.
type LandmarkClient struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
	url    string
	logger *slog.Logger
}

// NewLandmarkClient dials url. Extra options are appended after the
// defaults, which lets tests swap the transport.
func NewLandmarkClient(url string, logger *slog.Logger, extra ...grpc.DialOption) (*LandmarkClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "landmark_client", "url", url)
	logger.Info("connecting to landmark service")

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(50*1024*1024),
			grpc.MaxCallSendMsgSize(50*1024*1024),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.Dial(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to landmark service at %s: %w", url, err)
	}

	return &LandmarkClient{
		conn:   conn,
		health: grpc_health_v1.NewHealthClient(conn),
		url:    url,
		logger: logger,
	}, nil
}

// Detect sends the encoded frame and returns the faces found in it.
// Frame metadata travels as gRPC headers.
func (c *LandmarkClient) Detect(ctx context.Context, frame models.Frame) ([]models.FaceLandmarks, error) {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	ctx = metadata.AppendToOutgoingContext(ctx,
		mdFrameSeq, strconv.FormatUint(frame.Seq, 10),
		mdFrameFormat, frame.Format,
		mdFrameWidth, strconv.Itoa(frame.Width),
		mdFrameHeight, strconv.Itoa(frame.Height),
	)

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, detectMethod, wrapperspb.Bytes(frame.Data), out); err != nil {
		return nil, fmt.Errorf("could not detect landmarks for frame %d: %w", frame.Seq, err)
	}
	faces, err := FacesFromStruct(out)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame.Seq, err)
	}
	return faces, nil
}

func (c *LandmarkClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: landmarkServiceName})
	if err != nil {
		c.logger.Warn("landmark service health check failed", "error", err)
		return false
	}
	return resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING
}

func (c *LandmarkClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
