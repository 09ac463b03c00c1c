// Package grpcapi implements the tcalc.v1.Calculator gRPC service. Messages
// are google.protobuf.Struct values so clients in any language can call the
// service without generated stubs.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/tcalc/pkg/store"
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tcalc.v1.Calculator"

// CalculatorServer is the server API for the Calculator service.
type CalculatorServer interface {
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EvaluateProgram(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(CalculatorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CalculatorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CalculatorServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Calculator service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CalculatorServer)(nil),
	Methods: []grpc.MethodDesc{
		method("CreateSession", CalculatorServer.CreateSession),
		method("GetSession", CalculatorServer.GetSession),
		method("ListSessions", CalculatorServer.ListSessions),
		method("DeleteSession", CalculatorServer.DeleteSession),
		method("ResetSession", CalculatorServer.ResetSession),
		method("Evaluate", CalculatorServer.Evaluate),
		method("EvaluateProgram", CalculatorServer.EvaluateProgram),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tcalc/v1/calculator.proto",
}

// Server implements the Calculator service on top of a session store.
type Server struct {
	store *store.Store
	grpc  *grpc.Server
}

// New creates a new gRPC server wrapping the given store.
func New(s *store.Store) *Server {
	srv := &Server{store: s}

	gs := grpc.NewServer()
	gs.RegisterService(&ServiceDesc, srv)
	srv.grpc = gs

	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.grpc.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

// --- Sessions ---

func (s *Server) CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.store.CreateSession(stringField(req, "session_id"), stringField(req, "description"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			return nil, status.Error(codes.AlreadyExists, err.Error())
		case errors.Is(err, store.ErrInvalidID):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	log.Printf("Created session %s", sess.ID)
	return sessionToProto(sess.Info(false)), nil
}

func (s *Server) GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	return sessionToProto(sess.Info(boolField(req, "full"))), nil
}

func (s *Server) ListSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sessions := s.store.ListSessions()
	items := make([]*structpb.Value, len(sessions))
	for i, sess := range sessions {
		items[i] = structpb.NewStructValue(sessionToProto(sess.Info(false)))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"sessions": structpb.NewListValue(&structpb.ListValue{Values: items}),
	}}, nil
}

func (s *Server) DeleteSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "session_id")
	if err := s.store.DeleteSession(id); err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	log.Printf("Deleted session %s", id)
	return &structpb.Struct{}, nil
}

func (s *Server) ResetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	sess.Reset()
	return sessionToProto(sess.Info(false)), nil
}

// --- Evaluation ---

// Evaluate evaluates an expression in a session, or statelessly when no
// session_id is given.
func (s *Server) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	src := stringField(req, "expression")
	if src == "" {
		return nil, status.Error(codes.InvalidArgument, "expression is required")
	}

	var v float64
	if stringField(req, "session_id") == "" {
		vs, err := s.store.Evaluate(store.ModeExpression, src)
		if err != nil {
			return nil, StatusFromError(err)
		}
		v = vs[0]
	} else {
		sess, err := s.session(req)
		if err != nil {
			return nil, err
		}
		if v, err = sess.Evaluate(src); err != nil {
			return nil, StatusFromError(err)
		}
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"result":  structpb.NewNumberValue(v),
		"display": structpb.NewStringValue(types.FormatNumber(v)),
	}}, nil
}

// EvaluateProgram evaluates a program in a session, or statelessly when no
// session_id is given.
func (s *Server) EvaluateProgram(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	src := stringField(req, "program")

	var vs []float64
	if stringField(req, "session_id") == "" {
		var err error
		if vs, err = s.store.Evaluate(store.ModeProgram, src); err != nil {
			return nil, StatusFromError(err)
		}
	} else {
		sess, err := s.session(req)
		if err != nil {
			return nil, err
		}
		if vs, err = sess.EvaluateProgram(src); err != nil {
			return nil, StatusFromError(err)
		}
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"results": numberList(vs),
		"display": structpb.NewStringValue(types.FormatNumbers(vs, "\n")),
	}}, nil
}

// --- Internal helpers ---

func (s *Server) session(req *structpb.Struct) (*store.Session, error) {
	id := stringField(req, "session_id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	sess, err := s.store.GetSession(id)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return sess, nil
}

// CodeForKind maps an error kind to a gRPC status code.
func CodeForKind(kind types.Kind) codes.Code {
	switch kind {
	case types.KindLex, types.KindParse, types.KindInvalidMode:
		return codes.InvalidArgument
	case types.KindRecursionLimit:
		return codes.OutOfRange
	default:
		return codes.FailedPrecondition
	}
}

// StatusFromError converts a tcalc error into a gRPC status error. The kind
// and position travel as a Struct detail so clients can rebuild the error.
func StatusFromError(err error) error {
	kind := types.KindOf(err)
	if kind == 0 {
		return status.Error(codes.Internal, err.Error())
	}

	var message string
	var e *types.Error
	if errors.As(err, &e) {
		message = e.Message
	}

	detail := &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":    structpb.NewStringValue(kind.String()),
		"message": structpb.NewStringValue(message),
	}}
	if pos, ok := types.PositionOf(err); ok {
		detail.Fields["offset"] = structpb.NewNumberValue(float64(pos.Offset))
		detail.Fields["line"] = structpb.NewNumberValue(float64(pos.Line))
		detail.Fields["column"] = structpb.NewNumberValue(float64(pos.Column))
	}

	st, derr := status.New(CodeForKind(kind), err.Error()).WithDetails(detail)
	if derr != nil {
		return status.Error(CodeForKind(kind), err.Error())
	}
	return st.Err()
}

// ErrorFromStatus is the inverse of StatusFromError. Statuses without a tcalc
// detail are returned unchanged.
func ErrorFromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		detail, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		kind := types.ParseKind(stringField(detail, "kind"))
		if kind == 0 {
			continue
		}
		e := &types.Error{Kind: kind, Message: stringField(detail, "message")}
		if _, ok := detail.GetFields()["line"]; ok {
			e.Pos = &types.Position{
				Offset: int(detail.GetFields()["offset"].GetNumberValue()),
				Line:   int(detail.GetFields()["line"].GetNumberValue()),
				Column: int(detail.GetFields()["column"].GetNumberValue()),
			}
		}
		return e
	}
	return err
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func boolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func numberList(vs []float64) *structpb.Value {
	values := make([]*structpb.Value, len(vs))
	for i, v := range vs {
		values[i] = structpb.NewNumberValue(v)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func sessionToProto(info store.Info) *structpb.Struct {
	vars := make(map[string]*structpb.Value, len(info.Variables))
	for k, v := range info.Variables {
		vars[k] = structpb.NewNumberValue(v)
	}
	funcs := make(map[string]*structpb.Value, len(info.Functions))
	for k, v := range info.Functions {
		funcs[k] = structpb.NewStringValue(v)
	}

	pb := &structpb.Struct{Fields: map[string]*structpb.Value{
		"name":        structpb.NewStringValue(info.Name),
		"id":          structpb.NewStringValue(info.ID),
		"description": structpb.NewStringValue(info.Description),
		"create_time": structpb.NewStringValue(info.CreateTime.Format(time.RFC3339Nano)),
		"update_time": structpb.NewStringValue(info.UpdateTime.Format(time.RFC3339Nano)),
		"evaluations": structpb.NewNumberValue(float64(info.Evaluations)),
		"variables":   structpb.NewStructValue(&structpb.Struct{Fields: vars}),
		"functions":   structpb.NewStructValue(&structpb.Struct{Fields: funcs}),
	}}

	if info.History != nil {
		history := make([]*structpb.Value, len(info.History))
		for i, e := range info.History {
			entry := &structpb.Struct{Fields: map[string]*structpb.Value{
				"mode":   structpb.NewStringValue(string(e.Mode)),
				"source": structpb.NewStringValue(e.Source),
				"time":   structpb.NewStringValue(e.Time.Format(time.RFC3339Nano)),
			}}
			if e.Error != "" {
				entry.Fields["error"] = structpb.NewStringValue(e.Error)
			} else {
				entry.Fields["results"] = numberList(e.Results)
			}
			history[i] = structpb.NewStructValue(entry)
		}
		pb.Fields["history"] = structpb.NewListValue(&structpb.ListValue{Values: history})
	}
	return pb
}
