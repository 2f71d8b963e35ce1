package introspect

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/godds/core/guid"
)

// DomainStatsServer is the gRPC-facing interface this package's server
// implements; request/response bodies are structpb.Struct rather than
// a generated message type, since the fields reported here are free-form
// diagnostic key/value pairs rather than a stable wire contract this
// module needs to version.
type DomainStatsServer interface {
	ListParticipants(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetWriterState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMatchSet(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// DomainStatsService implements DomainStatsServer by reading through a
// Source.
type DomainStatsService struct {
	source Source
	log    *zap.SugaredLogger
}

// NewDomainStatsService returns a gRPC service reporting the state
// visible through source.
func NewDomainStatsService(source Source, log *zap.SugaredLogger) *DomainStatsService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &DomainStatsService{source: source, log: log.Named("introspect")}
}

// ListParticipants reports every participant (local and proxy) the
// source currently knows about.
func (s *DomainStatsService) ListParticipants(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	rows := s.source.ListParticipants()
	list := make([]any, 0, len(rows))
	for _, p := range rows {
		list = append(list, map[string]any{
			"guid":     p.GUID.String(),
			"is_proxy": p.IsProxy,
			"created":  p.Created.Format(timeFormat),
		})
	}
	return structpb.NewStruct(map[string]any{"participants": list})
}

// GetWriterState reports one writer's WHC window and match count. The
// request must carry a "guid" string field.
func (s *DomainStatsService) GetWriterState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	g, err := guidField(req)
	if err != nil {
		return nil, err
	}

	w, ok := s.source.GetWriterState(g)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "writer %s not found", g)
	}

	return structpb.NewStruct(map[string]any{
		"guid":          w.GUID.String(),
		"topic":         w.Topic,
		"min_seq":       float64(w.MinSeq),
		"max_seq":       float64(w.MaxSeq),
		"unacked_bytes": float64(w.UnackedBytes),
		"match_count":   float64(w.MatchCount),
	})
}

// GetMatchSet reports every reader a writer is matched with, and
// whether each is currently considered alive.
func (s *DomainStatsService) GetMatchSet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	g, err := guidField(req)
	if err != nil {
		return nil, err
	}

	m, ok := s.source.GetMatchSet(g)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "writer %s not found", g)
	}

	readers := make([]any, 0, len(m.Readers))
	for _, r := range m.Readers {
		readers = append(readers, map[string]any{
			"reader": r.Reader.String(),
			"alive":  r.Alive,
		})
	}
	return structpb.NewStruct(map[string]any{
		"writer":  m.Writer.String(),
		"readers": readers,
	})
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func guidField(req *structpb.Struct) (guid.GUID, error) {
	if req == nil {
		return guid.GUID{}, status.Error(codes.InvalidArgument, "missing request")
	}
	v, ok := req.Fields["guid"]
	if !ok {
		return guid.GUID{}, status.Error(codes.InvalidArgument, "missing \"guid\" field")
	}
	g, err := guid.Parse(v.GetStringValue())
	if err != nil {
		return guid.GUID{}, status.Errorf(codes.InvalidArgument, "invalid guid: %v", err)
	}
	return g, nil
}

// RegisterDomainStatsServer registers srv on s, the pattern
// protoc-gen-go-grpc emits for every service (kept hand-written here
// since this service's messages are structpb.Struct, not generated
// types).
func RegisterDomainStatsServer(s grpc.ServiceRegistrar, srv DomainStatsServer) {
	s.RegisterService(&domainStatsServiceDesc, srv)
}

func _DomainStats_ListParticipants_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DomainStatsServer).ListParticipants(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/godds.introspect.DomainStats/ListParticipants"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DomainStatsServer).ListParticipants(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _DomainStats_GetWriterState_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DomainStatsServer).GetWriterState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/godds.introspect.DomainStats/GetWriterState"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DomainStatsServer).GetWriterState(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _DomainStats_GetMatchSet_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DomainStatsServer).GetMatchSet(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/godds.introspect.DomainStats/GetMatchSet"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DomainStatsServer).GetMatchSet(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var domainStatsServiceDesc = grpc.ServiceDesc{
	ServiceName: "godds.introspect.DomainStats",
	HandlerType: (*DomainStatsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListParticipants", Handler: _DomainStats_ListParticipants_Handler},
		{MethodName: "GetWriterState", Handler: _DomainStats_GetWriterState_Handler},
		{MethodName: "GetMatchSet", Handler: _DomainStats_GetMatchSet_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "introspect.proto",
}
