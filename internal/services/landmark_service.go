package services

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	landmarkServiceName = "landmarks.v1.LandmarkService"
	detectMethod        = "/" + landmarkServiceName + "/Detect"

	mdFrameSeq    = "x-frame-seq"
	mdFrameFormat = "x-frame-format"
	mdFrameWidth  = "x-frame-width"
	mdFrameHeight = "x-frame-height"

	facesField = "faces"
)

// LandmarkServer is the server side of the landmark service. Requests carry
// the encoded frame; the response holds one flat [x0,y0,x1,y1,...] list per
// face under "faces".
type LandmarkServer interface {
	Detect(ctx context.Context, frame *wrapperspb.BytesValue) (*structpb.Struct, error)
}

var landmarkServiceDesc = grpc.ServiceDesc{
	ServiceName: landmarkServiceName,
	HandlerType: (*LandmarkServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Detect", Handler: detectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "landmarks/v1/landmarks.proto",
}

func RegisterLandmarkServer(s grpc.ServiceRegistrar, srv LandmarkServer) {
	s.RegisterService(&landmarkServiceDesc, srv)
}

func detectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LandmarkServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: detectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LandmarkServer).Detect(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// FrameFromIncoming rebuilds the frame a client sent, for server
// implementations.
func FrameFromIncoming(ctx context.Context, in *wrapperspb.BytesValue) models.Frame {
	frame := models.Frame{Data: in.GetValue()}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return frame
	}
	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
		return ""
	}
	frame.Seq, _ = strconv.ParseUint(first(mdFrameSeq), 10, 64)
	frame.Format = first(mdFrameFormat)
	frame.Width, _ = strconv.Atoi(first(mdFrameWidth))
	frame.Height, _ = strconv.Atoi(first(mdFrameHeight))
	return frame
}

// FacesToStruct encodes faces in the wire layout.
func FacesToStruct(faces []models.FaceLandmarks) (*structpb.Struct, error) {
	list := make([]any, 0, len(faces))
	for _, face := range faces {
		flat := make([]any, 0, 2*len(face.Points))
		for _, p := range face.Points {
			flat = append(flat, p.X, p.Y)
		}
		list = append(list, flat)
	}
	return structpb.NewStruct(map[string]any{facesField: list})
}

// FacesFromStruct decodes a service response. A missing "faces" field means
// no face was found.
func FacesFromStruct(s *structpb.Struct) ([]models.FaceLandmarks, error) {
	v, ok := s.GetFields()[facesField]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%q is not a list", facesField)
	}

	flat := make([][]float64, 0, len(list.GetValues()))
	for i, fv := range list.GetValues() {
		coords := fv.GetListValue()
		if coords == nil {
			return nil, fmt.Errorf("face %d is not a list", i)
		}
		nums := make([]float64, 0, len(coords.GetValues()))
		for _, c := range coords.GetValues() {
			n, ok := c.GetKind().(*structpb.Value_NumberValue)
			if !ok {
				return nil, fmt.Errorf("face %d has a non-numeric coordinate", i)
			}
			nums = append(nums, n.NumberValue)
		}
		flat = append(flat, nums)
	}
	return facesFromFlat(flat)
}

func facesFromFlat(flat [][]float64) ([]models.FaceLandmarks, error) {
	faces := make([]models.FaceLandmarks, 0, len(flat))
	for i, coords := range flat {
		if len(coords)%2 != 0 {
			return nil, fmt.Errorf("face %d has an odd coordinate count %d", i, len(coords))
		}
		face := models.FaceLandmarks{Points: make([]models.Point, 0, len(coords)/2)}
		for j := 0; j < len(coords); j += 2 {
			x, y := coords[j], coords[j+1]
			if math.IsNaN(x) || math.IsNaN(y) {
				return nil, fmt.Errorf("face %d point %d is NaN", i, j/2)
			}
			face.Points = append(face.Points, models.Point{X: x, Y: y})
		}
		faces = append(faces, face)
	}
	return faces, nil
}
