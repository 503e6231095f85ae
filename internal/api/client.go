package api

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a typed SortWatch client. Every call uses the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeviceStatus(ctx context.Context, in *DeviceStatusRequest, opts ...grpc.CallOption) (*DeviceStatusResponse, error) {
	return invoke[DeviceStatusResponse](ctx, c, "DeviceStatus", in, opts)
}

func (c *Client) ResolveBin(ctx context.Context, in *ResolveBinRequest, opts ...grpc.CallOption) (*ResolveBinResponse, error) {
	return invoke[ResolveBinResponse](ctx, c, "ResolveBin", in, opts)
}

func (c *Client) Aggregate(ctx context.Context, in *AggregateRequest, opts ...grpc.CallOption) (*AggregateResponse, error) {
	return invoke[AggregateResponse](ctx, c, "Aggregate", in, opts)
}

func (c *Client) BinFill(ctx context.Context, in *BinFillRequest, opts ...grpc.CallOption) (*BinFillResponse, error) {
	return invoke[BinFillResponse](ctx, c, "BinFill", in, opts)
}

func (c *Client) AppendLog(ctx context.Context, in *AppendLogRequest, opts ...grpc.CallOption) (*AppendLogResponse, error) {
	return invoke[AppendLogResponse](ctx, c, "AppendLog", in, opts)
}

func (c *Client) ReadLog(ctx context.Context, in *ReadLogRequest, opts ...grpc.CallOption) (*ReadLogResponse, error) {
	return invoke[ReadLogResponse](ctx, c, "ReadLog", in, opts)
}

func (c *Client) RequestCode(ctx context.Context, in *RequestCodeRequest, opts ...grpc.CallOption) (*RequestCodeResponse, error) {
	return invoke[RequestCodeResponse](ctx, c, "RequestCode", in, opts)
}

func (c *Client) VerifyCode(ctx context.Context, in *VerifyCodeRequest, opts ...grpc.CallOption) (*VerifyCodeResponse, error) {
	return invoke[VerifyCodeResponse](ctx, c, "VerifyCode", in, opts)
}

func (c *Client) IssueSession(ctx context.Context, in *IssueSessionRequest, opts ...grpc.CallOption) (*IssueSessionResponse, error) {
	return invoke[IssueSessionResponse](ctx, c, "IssueSession", in, opts)
}
