// Package rpc serves the live game over gRPC. Messages are protobuf
// well-known types, so the service descriptor is declared by hand.
package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"idlegame/engine/internal/clock"
	"idlegame/engine/internal/commands"
	"idlegame/engine/internal/domain"
	"idlegame/engine/internal/logging"
	"idlegame/engine/internal/session"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "idle.v1.Game"

const (
	dispatchMethod = "/" + ServiceName + "/Dispatch"
	stateMethod    = "/" + ServiceName + "/State"
	watchMethod    = "/" + ServiceName + "/Watch"
)

const watchBuffer = 16

// Game is the slice of the session the service depends on.
type Game interface {
	Do(ctx context.Context, cmd commands.Command) (domain.State, error)
	Snapshot() domain.State
	Subscribe(buffer int) (<-chan session.Update, func())
	Clock() clock.Clock
}

// GameServer is the server API for the idle.v1.Game service.
type GameServer interface {
	Dispatch(ctx context.Context, action *wrapperspb.StringValue) (*structpb.Struct, error)
	State(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	Watch(req *emptypb.Empty, stream grpc.ServerStream) error
}

// Server implements GameServer on top of a session.
type Server struct {
	game Game
	log  *logging.Logger
}

// NewServer wires the service to the game.
func NewServer(game Game, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.L()
	}
	return &Server{game: game, log: logger}
}

// Register attaches srv to the gRPC server.
func Register(registrar grpc.ServiceRegistrar, srv GameServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// Dispatch applies the named action and returns the resulting view.
func (s *Server) Dispatch(ctx context.Context, action *wrapperspb.StringValue) (*structpb.Struct, error) {
	if s == nil || s.game == nil {
		return nil, status.Error(codes.FailedPrecondition, "game unavailable")
	}
	cmd, err := commands.Parse(action.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	st, err := s.game.Do(ctx, cmd)
	if err != nil {
		if errors.Is(err, session.ErrClosed) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, status.FromContextError(ctxErr).Err()
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.log.Debug("rpc action applied", logging.String("action", cmd.Name()), logging.String("command_id", cmd.CommandID()))
	return s.encode(st)
}

// State returns the current view.
func (s *Server) State(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.game == nil {
		return nil, status.Error(codes.FailedPrecondition, "game unavailable")
	}
	return s.encode(s.game.Snapshot())
}

// Watch streams the current view followed by one view per applied action.
func (s *Server) Watch(_ *emptypb.Empty, stream grpc.ServerStream) error {
	if s == nil || s.game == nil {
		return status.Error(codes.FailedPrecondition, "streaming unavailable")
	}
	ctx := stream.Context()
	//1.- Subscribe before the first send so no update slips between them.
	updates, cancel := s.game.Subscribe(watchBuffer)
	defer cancel()

	first, err := s.encode(s.game.Snapshot())
	if err != nil {
		return err
	}
	if err := stream.SendMsg(first); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, err := s.encode(update.State)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func (s *Server) encode(st domain.State) (*structpb.Struct, error) {
	msg, err := structpb.NewStruct(session.NewView(st, s.game.Clock().Now()).Fields())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode view: %v", err)
	}
	return msg, nil
}

func dispatchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GameServer).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: dispatchMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GameServer).Dispatch(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func stateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GameServer).State(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: stateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GameServer).State(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(GameServer).Watch(in, stream)
}

// ServiceDesc describes the idle.v1.Game service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GameServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: dispatchHandler},
		{MethodName: "State", Handler: stateHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "idle/v1/game.proto",
}
