package server

import (
	"context"
	"encoding/base64"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls an UploadService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

// Submit uploads data as fileName for userID.
func (c *Client) Submit(ctx context.Context, userID, fileName, mimeType string, data []byte) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{
		"user_id":   userID,
		"file_name": fileName,
		"mime_type": mimeType,
		"content":   base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Submit", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStatus(ctx context.Context, jobID string) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "GetStatus", wrapperspb.String(jobID), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListJobs(ctx context.Context, userID string) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "ListJobs", wrapperspb.String(userID), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Retry(ctx context.Context, jobID string) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Retry", wrapperspb.String(jobID), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Cancel(ctx context.Context, jobID string) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Cancel", wrapperspb.String(jobID), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) IngestPath(ctx context.Context, userID, path string, skipHidden bool) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"user_id": userID, "path": path, "skip_hidden": skipHidden})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "IngestPath", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportReview requests a workbook; fields follow UploadService.ExportReview.
func (c *Client) ExportReview(ctx context.Context, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "ExportReview", in, out); err != nil {
		return nil, err
	}
	return out, nil
}
