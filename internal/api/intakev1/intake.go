// Package intakev1 describes the benchboard.v1.Intake gRPC service.
//
// Every method takes and returns a google.protobuf.Struct, so the service is
// registered from a hand-written descriptor instead of generated stubs.
package intakev1

import (
	"context"
	"encoding/json"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "benchboard.v1.Intake"

// Method names.
const (
	MethodRegister          = "Register"
	MethodSubmit            = "Submit"
	MethodGetSubmission     = "GetSubmission"
	MethodLeaderboard       = "Leaderboard"
	MethodListVersions      = "ListVersions"
	MethodRequestClaim      = "RequestClaim"
	MethodConfirmClaim      = "ConfirmClaim"
	MethodRevertClaim       = "RevertClaim"
	MethodSetCurrentVersion = "SetCurrentVersion"
	MethodSetVersionHidden  = "SetVersionHidden"
	MethodListAllVersions   = "ListAllVersions"
)

// Metadata keys.
const (
	AuthorizationHeader = "authorization"
	AssertionHeader     = "x-idp-assertion"
)

// FullMethod returns "/benchboard.v1.Intake/<method>".
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// IntakeServer is the server API for benchboard.v1.Intake.
type IntakeServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSubmission(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Leaderboard(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListVersions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestClaim(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmClaim(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RevertClaim(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetCurrentVersion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetVersionHidden(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAllVersions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type call func(IntakeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(method string, fn call) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(IntakeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(IntakeServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for benchboard.v1.Intake.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IntakeServer)(nil),
	Methods: []grpc.MethodDesc{
		handler(MethodRegister, IntakeServer.Register),
		handler(MethodSubmit, IntakeServer.Submit),
		handler(MethodGetSubmission, IntakeServer.GetSubmission),
		handler(MethodLeaderboard, IntakeServer.Leaderboard),
		handler(MethodListVersions, IntakeServer.ListVersions),
		handler(MethodRequestClaim, IntakeServer.RequestClaim),
		handler(MethodConfirmClaim, IntakeServer.ConfirmClaim),
		handler(MethodRevertClaim, IntakeServer.RevertClaim),
		handler(MethodSetCurrentVersion, IntakeServer.SetCurrentVersion),
		handler(MethodSetVersionHidden, IntakeServer.SetVersionHidden),
		handler(MethodListAllVersions, IntakeServer.ListAllVersions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "benchboard/v1/intake.proto",
}

// RegisterIntakeServer registers srv on s.
func RegisterIntakeServer(s grpc.ServiceRegistrar, srv IntakeServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls benchboard.v1.Intake methods over cc.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Call invokes method with req. A nil req is sent as an empty struct.
func (c *Client) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ErrorDomain is the ErrorInfo domain of statuses returned by the service.
const ErrorDomain = "benchboard"

// Violations extracts the validation violations carried by a status returned
// by the service. Violations travel as a JSON array in ErrorInfo metadata.
func Violations(err error) []string {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		var out []string
		if raw := info.GetMetadata()["violations"]; raw != "" && json.Unmarshal([]byte(raw), &out) == nil {
			return out
		}
	}
	return nil
}
