// Package admin exposes operational RPCs over gRPC: the standard health
// service, server reflection, and wizwac.admin.v1.AdminService.
package admin

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/wizwac/internal/gateway"
	"github.com/cory-johannsen/wizwac/internal/history"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wizwac.admin.v1.AdminService"

// Full method names, for clients.
const (
	StatsMethod         = "/" + ServiceName + "/Stats"
	RecentMatchesMethod = "/" + ServiceName + "/RecentMatches"
)

// StatsSource reports live gateway counters.
type StatsSource interface {
	Stats() gateway.Stats
}

// MatchReader reads persisted match history.
type MatchReader interface {
	Recent(ctx context.Context, limit int) ([]history.MatchResult, error)
}

// AdminServiceServer is the server API for wizwac.admin.v1.AdminService.
type AdminServiceServer interface {
	Stats(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	RecentMatches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Service implements AdminServiceServer.
type Service struct {
	stats       StatsSource
	matches     MatchReader
	recentLimit int
	logger      *zap.Logger
}

// NewService creates the admin service.
//
// Precondition: stats and logger must be non-nil. A nil matches disables RecentMatches.
// recentLimit caps RecentMatches; values < 1 select 50.
func NewService(stats StatsSource, matches MatchReader, recentLimit int, logger *zap.Logger) *Service {
	if recentLimit < 1 {
		recentLimit = 50
	}
	return &Service{
		stats:       stats,
		matches:     matches,
		recentLimit: recentLimit,
		logger:      logger,
	}
}

// Stats returns live room and connection counts plus lifetime counters.
func (s *Service) Stats(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.stats.Stats()
	out, err := structpb.NewStruct(map[string]any{
		"rooms":          st.Rooms,
		"connections":    st.Connections,
		"rooms_created":  st.RoomsCreated,
		"games_finished": st.GamesFinished,
		"moves_applied":  st.MovesApplied,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding stats: %v", err)
	}
	return out, nil
}

// RecentMatches returns the newest finished games. The optional "limit" field
// is clamped to [1, recentLimit].
//
// Postcondition: Returns codes.Unavailable when match history is disabled.
func (s *Service) RecentMatches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.matches == nil {
		return nil, status.Error(codes.Unavailable, "match history is disabled")
	}

	limit := s.recentLimit
	if v, ok := req.GetFields()["limit"]; ok {
		n, isNum := v.GetKind().(*structpb.Value_NumberValue)
		if !isNum {
			return nil, status.Error(codes.InvalidArgument, "limit must be a number")
		}
		if l := int(n.NumberValue); l >= 1 && l < limit {
			limit = l
		}
	}

	results, err := s.matches.Recent(ctx, limit)
	if err != nil {
		s.logger.Error("reading match history", zap.Error(err))
		return nil, status.Error(codes.Internal, "reading match history")
	}

	matches := make([]any, 0, len(results))
	for _, m := range results {
		cells := make([]any, len(m.Board))
		for i, c := range m.Board {
			cells[i] = c
		}
		matches = append(matches, map[string]any{
			"room_code":   m.RoomCode,
			"player_a":    m.PlayerA,
			"player_b":    m.PlayerB,
			"winner":      m.Winner,
			"winner_name": m.WinnerName,
			"board":       cells,
			"moves":       m.Moves,
			"finished_at": m.FinishedAt.UTC().Format(time.RFC3339),
		})
	}
	out, err := structpb.NewStruct(map[string]any{"matches": matches})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding matches: %v", err)
	}
	return out, nil
}

// RegisterAdminServiceServer registers srv on s. Requests and responses are the
// well-known Empty and Struct messages, so the service has no proto file of its own.
func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StatsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).Stats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func recentMatchesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).RecentMatches(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RecentMatchesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).RecentMatches(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: statsHandler},
		{MethodName: "RecentMatches", Handler: recentMatchesHandler},
	},
	Streams: []grpc.StreamDesc{},
}
