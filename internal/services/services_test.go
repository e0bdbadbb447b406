package services

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// echoServer returns one face whose only point encodes the frame size, and
// no face for empty payloads.
type echoServer struct {
	got chan models.Frame
}

func (s *echoServer) Detect(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	frame := FrameFromIncoming(ctx, in)
	if s.got != nil {
		s.got <- frame
	}
	switch string(frame.Data) {
	case "":
		return FacesToStruct(nil)
	case "fail":
		return nil, status.Error(codes.Unavailable, "model not loaded")
	}
	return FacesToStruct([]models.FaceLandmarks{{
		Points: []models.Point{{X: float64(frame.Width), Y: float64(frame.Height)}},
	}})
}

func startLandmarkServer(t *testing.T, srv LandmarkServer, serving bool) *LandmarkClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterLandmarkServer(s, srv)

	hs := health.NewServer()
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus(landmarkServiceName, st)
	grpc_health_v1.RegisterHealthServer(s, hs)

	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	client, err := NewLandmarkClient("bufnet", nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLandmarkClientDetect(t *testing.T) {
	srv := &echoServer{got: make(chan models.Frame, 1)}
	client := startLandmarkServer(t, srv, true)

	faces, err := client.Detect(context.Background(), models.Frame{
		Seq: 42, Width: 640, Height: 480, Format: "png", Data: []byte("pixels"),
	})
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, []models.Point{{X: 640, Y: 480}}, faces[0].Points)

	got := <-srv.got
	assert.Equal(t, uint64(42), got.Seq)
	assert.Equal(t, "png", got.Format)
	assert.Equal(t, []byte("pixels"), got.Data)
}

func TestLandmarkClientNoFace(t *testing.T) {
	client := startLandmarkServer(t, &echoServer{}, true)
	faces, err := client.Detect(context.Background(), models.Frame{Seq: 1})
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestLandmarkClientServerError(t *testing.T) {
	client := startLandmarkServer(t, &echoServer{}, true)
	_, err := client.Detect(context.Background(), models.Frame{Seq: 7, Data: []byte("fail")})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
	assert.Contains(t, err.Error(), "frame 7")
}

func TestLandmarkClientHealth(t *testing.T) {
	ctx := context.Background()
	assert.True(t, startLandmarkServer(t, &echoServer{}, true).HealthCheck(ctx))
	assert.False(t, startLandmarkServer(t, &echoServer{}, false).HealthCheck(ctx))
}

func TestFacesStructRoundTrip(t *testing.T) {
	in := []models.FaceLandmarks{
		{Points: []models.Point{{X: 0.1, Y: 0.2}, {X: 0.3, Y: 0.4}}},
		{Points: []models.Point{}},
	}
	s, err := FacesToStruct(in)
	require.NoError(t, err)
	out, err := FacesFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFacesFromStructRejectsMalformed(t *testing.T) {
	cases := map[string]map[string]any{
		"faces not a list":  {"faces": "nope"},
		"face not a list":   {"faces": []any{1.0}},
		"odd coordinates":   {"faces": []any{[]any{0.1, 0.2, 0.3}}},
		"string coordinate": {"faces": []any{[]any{"x", 0.2}}},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := structpb.NewStruct(raw)
			require.NoError(t, err)
			_, err = FacesFromStruct(s)
			assert.Error(t, err)
		})
	}

	faces, err := FacesFromStruct(&structpb.Struct{})
	require.NoError(t, err)
	assert.Nil(t, faces)
}

func TestJSONProvider(t *testing.T) {
	frame := models.Frame{
		Seq:    3,
		Format: FormatLandmarksJSON,
		Data:   []byte(`{"faces":[[0.5,0.25,1,0]]}`),
	}
	faces, err := JSONProvider{}.Detect(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, []models.Point{{X: 0.5, Y: 0.25}, {X: 1, Y: 0}}, faces[0].Points)

	frame.Data = []byte(`{"faces":[]}`)
	faces, err = JSONProvider{}.Detect(context.Background(), frame)
	require.NoError(t, err)
	assert.Empty(t, faces)

	frame.Data = []byte(`{`)
	_, err = JSONProvider{}.Detect(context.Background(), frame)
	assert.Error(t, err)

	_, err = JSONProvider{}.Detect(context.Background(), models.Frame{Format: "png"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

type stubProvider struct{ calls int }

func (s *stubProvider) Detect(context.Context, models.Frame) ([]models.FaceLandmarks, error) {
	s.calls++
	return []models.FaceLandmarks{{}}, nil
}

func TestFormatRouter(t *testing.T) {
	remote := &stubProvider{}
	r := FormatRouter{Remote: remote}

	_, err := r.Detect(context.Background(), models.Frame{Format: FormatLandmarksJSON, Data: []byte(`{}`)})
	require.NoError(t, err)
	assert.Zero(t, remote.calls)

	faces, err := r.Detect(context.Background(), models.Frame{Format: "jpeg"})
	require.NoError(t, err)
	assert.Len(t, faces, 1)
	assert.Equal(t, 1, remote.calls)

	_, err = FormatRouter{}.Detect(context.Background(), models.Frame{Format: "jpeg"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	empty := m.Snapshot()
	assert.Zero(t, empty.AvgLatencyMs)
	assert.True(t, empty.LastFrame.IsZero())

	m.ObserveFrame(true, 2*time.Millisecond)
	m.ObserveFrame(false, 4*time.Millisecond)
	m.ObserveError()

	c := m.Snapshot()
	assert.Equal(t, int64(2), m.Frames())
	assert.Equal(t, int64(2), c.Frames)
	assert.Equal(t, int64(1), c.NoFace)
	assert.Equal(t, int64(1), c.ProviderErrors)
	assert.InDelta(t, 3.0, c.AvgLatencyMs, 1e-9)
	assert.WithinDuration(t, time.Now(), c.LastFrame, time.Second)
}
