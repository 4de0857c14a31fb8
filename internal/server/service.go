package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/export"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ingest"
	"github.com/joseph-ayodele/invoice-pipeline/internal/upload"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "invoicepipeline.v1.UploadService"

// UploadManager is what the service needs from the pipeline manager.
type UploadManager interface {
	Submit(ctx context.Context, userID string, src entity.SourceFile) (upload.Snapshot, error)
	Status(id uuid.UUID) (upload.Snapshot, error)
	List(userID string) []upload.Snapshot
	Retry(ctx context.Context, id uuid.UUID) (upload.Snapshot, error)
	Cancel(id uuid.UUID) (upload.Snapshot, error)
}

// Exporter builds review workbooks.
type Exporter interface {
	ExportXLSX(ctx context.Context, userID string, f export.Filter) (export.Result, error)
}

// UploadServiceServer is the server API. Requests and responses use the
// well-known Struct and StringValue messages.
type UploadServiceServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListJobs(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	Retry(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Cancel(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	IngestPath(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportReview(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UploadServiceDesc registers an UploadServiceServer with a grpc.Server.
var UploadServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*UploadServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: unary("Submit", UploadServiceServer.Submit)},
		{MethodName: "GetStatus", Handler: unary("GetStatus", UploadServiceServer.GetStatus)},
		{MethodName: "ListJobs", Handler: unary("ListJobs", UploadServiceServer.ListJobs)},
		{MethodName: "Retry", Handler: unary("Retry", UploadServiceServer.Retry)},
		{MethodName: "Cancel", Handler: unary("Cancel", UploadServiceServer.Cancel)},
		{MethodName: "IngestPath", Handler: unary("IngestPath", UploadServiceServer.IngestPath)},
		{MethodName: "ExportReview", Handler: unary("ExportReview", UploadServiceServer.ExportReview)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "invoicepipeline/v1/upload.proto",
}

// RegisterUploadServiceServer registers srv on s.
func RegisterUploadServiceServer(s grpc.ServiceRegistrar, srv UploadServiceServer) {
	s.RegisterService(&UploadServiceDesc, srv)
}

func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](method string, call func(UploadServiceServer, context.Context, PReq) (Resp, error)) grpc.MethodHandler {
	full := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(UploadServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(UploadServiceServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// UploadService implements UploadServiceServer on top of the pipeline.
type UploadService struct {
	manager  UploadManager
	ingestor ingest.Ingestor
	exporter Exporter
	maxBytes int64
	logger   *slog.Logger
}

func NewUploadService(m UploadManager, ing ingest.Ingestor, exp Exporter, maxBytes int64, logger *slog.Logger) *UploadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadService{manager: m, ingestor: ing, exporter: exp, maxBytes: maxBytes, logger: logger}
}

var _ UploadServiceServer = (*UploadService)(nil)

func (s *UploadService) GetStatus(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := parseJobID(req.GetValue())
	if err != nil {
		return nil, err
	}
	snap, err := s.manager.Status(id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(snap)
}

func (s *UploadService) ListJobs(_ context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	userID := req.GetValue()
	if userID == "" {
		return nil, common.InvalidArgumentError("user_id is required")
	}
	snaps := s.manager.List(userID)
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(snaps))}
	for _, snap := range snaps {
		st, err := toStruct(snap)
		if err != nil {
			return nil, err
		}
		out.Values = append(out.Values, structpb.NewStructValue(st))
	}
	return out, nil
}

func (s *UploadService) Retry(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := parseJobID(req.GetValue())
	if err != nil {
		return nil, err
	}
	snap, err := s.manager.Retry(ctx, id)
	if err != nil {
		s.logger.Warn("server.retry_failed", "job_id", id, "error", err)
		return nil, common.ToStatus(err)
	}
	return toStruct(snap)
}

// Cancel aborts a queued or running job. The returned snapshot may still show the stage the
// job was in; poll GetStatus for FAILED.
func (s *UploadService) Cancel(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := parseJobID(req.GetValue())
	if err != nil {
		return nil, err
	}
	snap, err := s.manager.Cancel(id)
	if err != nil {
		s.logger.Warn("server.cancel_failed", "job_id", id, "error", err)
		return nil, common.ToStatus(err)
	}
	s.logger.Info("server.cancel", "job_id", id, "status", snap.Status)
	return toStruct(snap)
}

func parseJobID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, common.InvalidArgumentError("job_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, common.InvalidArgumentError("job_id must be a UUID")
	}
	return id, nil
}

// toStruct converts any JSON-tagged value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	return st, nil
}

func stringField(st *structpb.Struct, key string) string {
	if st == nil {
		return ""
	}
	if v, ok := st.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func boolField(st *structpb.Struct, key string, def bool) bool {
	if st == nil {
		return def
	}
	v, ok := st.GetFields()[key]
	if !ok {
		return def
	}
	if _, isBool := v.GetKind().(*structpb.Value_BoolValue); !isBool {
		return def
	}
	return v.GetBoolValue()
}

func requireString(st *structpb.Struct, key string) (string, error) {
	v := stringField(st, key)
	if v == "" {
		return "", common.InvalidArgumentError(fmt.Sprintf("%s is required", key))
	}
	return v, nil
}
