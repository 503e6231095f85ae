package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sortwatch.v1.SortWatch"

// SortWatchServer is implemented by the gRPC handlers.
type SortWatchServer interface {
	DeviceStatus(context.Context, *DeviceStatusRequest) (*DeviceStatusResponse, error)
	ResolveBin(context.Context, *ResolveBinRequest) (*ResolveBinResponse, error)
	Aggregate(context.Context, *AggregateRequest) (*AggregateResponse, error)
	BinFill(context.Context, *BinFillRequest) (*BinFillResponse, error)
	AppendLog(context.Context, *AppendLogRequest) (*AppendLogResponse, error)
	ReadLog(context.Context, *ReadLogRequest) (*ReadLogResponse, error)
	RequestCode(context.Context, *RequestCodeRequest) (*RequestCodeResponse, error)
	VerifyCode(context.Context, *VerifyCodeRequest) (*VerifyCodeResponse, error)
	IssueSession(context.Context, *IssueSessionRequest) (*IssueSessionResponse, error)
}

// RegisterSortWatchServer registers srv on s.
func RegisterSortWatchServer(s grpc.ServiceRegistrar, srv SortWatchServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the SortWatch service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SortWatchServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("DeviceStatus", SortWatchServer.DeviceStatus),
		unary("ResolveBin", SortWatchServer.ResolveBin),
		unary("Aggregate", SortWatchServer.Aggregate),
		unary("BinFill", SortWatchServer.BinFill),
		unary("AppendLog", SortWatchServer.AppendLog),
		unary("ReadLog", SortWatchServer.ReadLog),
		unary("RequestCode", SortWatchServer.RequestCode),
		unary("VerifyCode", SortWatchServer.VerifyCode),
		unary("IssueSession", SortWatchServer.IssueSession),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sortwatch/v1",
}

// FullMethod returns "/<service>/<method>".
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

func unary[Req, Resp any](name string, call func(SortWatchServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if ic == nil {
				return call(srv.(SortWatchServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return ic(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(SortWatchServer), ctx, req.(*Req))
			})
		},
	}
}
