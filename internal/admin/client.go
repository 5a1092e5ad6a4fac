package admin

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls wizwac.admin.v1.AdminService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Stats fetches live counters.
func (c *Client) Stats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, StatsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RecentMatches fetches up to limit finished games; limit <= 0 uses the server cap.
func (c *Client) RecentMatches(ctx context.Context, limit int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	fields := map[string]any{}
	if limit > 0 {
		fields["limit"] = limit
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RecentMatchesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
