package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "schedula.v1.SchedulerService"

// SchedulerServiceServer is the method set served under ServiceName. Every
// request and response body is a google.protobuf.Struct.
type SchedulerServiceServer interface {
	CreateAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RescheduleAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAppointments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AvailableSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DaySchedule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpcomingAppointments(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(SchedulerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var SchedulerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateAppointment", SchedulerServiceServer.CreateAppointment),
		unaryHandler("RescheduleAppointment", SchedulerServiceServer.RescheduleAppointment),
		unaryHandler("CancelAppointment", SchedulerServiceServer.CancelAppointment),
		unaryHandler("DeleteAppointment", SchedulerServiceServer.DeleteAppointment),
		unaryHandler("GetAppointment", SchedulerServiceServer.GetAppointment),
		unaryHandler("ListAppointments", SchedulerServiceServer.ListAppointments),
		unaryHandler("AvailableSlots", SchedulerServiceServer.AvailableSlots),
		unaryHandler("DaySchedule", SchedulerServiceServer.DaySchedule),
		unaryHandler("UpcomingAppointments", SchedulerServiceServer.UpcomingAppointments),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "schedula/v1/scheduler.proto",
}

func RegisterSchedulerServiceServer(r grpc.ServiceRegistrar, srv SchedulerServiceServer) {
	r.RegisterService(&SchedulerServiceDesc, srv)
}

// FullMethod returns the invoke path for a method of ServiceName.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(SchedulerServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*structpb.Struct))
			})
		},
	}
}
