package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/goccy/go-json"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/service/eventbridge"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName        = "gateway.v1.EventGateway"
	PublishEventMethod = "/" + ServiceName + "/PublishEvent"
)

type EventPublisher interface {
	PublishEvent(ctx context.Context, event entity.GatewayEvent) error
}

// EventGatewayServer accepts backend events as google.protobuf.Struct
// messages of the form {user_id, kind, data}.
type EventGatewayServer interface {
	PublishEvent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var EventGatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventGatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PublishEvent",
			Handler:    publishEventHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gateway/v1/event_gateway.proto",
}

func RegisterEventGatewayServer(s grpc.ServiceRegistrar, srv EventGatewayServer) {
	s.RegisterService(&EventGatewayServiceDesc, srv)
}

func publishEventHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventGatewayServer).PublishEvent(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: PublishEventMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EventGatewayServer).PublishEvent(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type Server struct {
	publisher EventPublisher
}

func NewEventGatewayGRPCServer(publisher EventPublisher) *Server {
	return &Server{
		publisher: publisher,
	}
}

func (s *Server) PublishEvent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	event, err := gatewayEventFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	err = s.publisher.PublishEvent(ctx, event)
	switch {
	case err == nil:
	case errors.Is(err, eventbridge.ErrUnknownEventKind),
		errors.Is(err, eventbridge.ErrMissingUserID),
		errors.Is(err, eventbridge.ErrInvalidEventData):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, eventbridge.ErrPublishEventFailed):
		return nil, status.Error(codes.Unavailable, err.Error())
	default:
		logrus.WithFields(logrus.Fields{
			"userId": event.UserID,
			"kind":   event.Kind,
		}).Errorf("grpc publish event failed: %v", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	return structpb.NewStruct(map[string]any{
		"user_id": event.UserID,
		"kind":    string(event.Kind),
		"status":  "queued",
	})
}

func gatewayEventFromStruct(in *structpb.Struct) (entity.GatewayEvent, error) {
	fields := in.GetFields()

	event := entity.GatewayEvent{
		UserID: strings.TrimSpace(fields["user_id"].GetStringValue()),
		Kind:   entity.EventKind(strings.TrimSpace(fields["kind"].GetStringValue())),
	}
	if event.UserID == "" || event.Kind == "" {
		return event, errors.New("user_id and kind are required")
	}

	data := fields["data"].GetStructValue()
	if data == nil {
		return event, errors.New("data must be an object")
	}

	raw, err := json.Marshal(data.AsMap())
	if err != nil {
		return event, err
	}
	event.Data = raw

	return event, nil
}
