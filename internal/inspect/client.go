package inspect

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Client calls an Inspector service.
type Client struct {
	schema *Schema
	conn   grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) (*Client, error) {
	schema, err := LoadSchema()
	if err != nil {
		return nil, err
	}
	return &Client{schema: schema, conn: conn}, nil
}

func (c *Client) invoke(ctx context.Context, method string, req *dynamicpb.Message) (*dynamicpb.Message, error) {
	md := c.schema.method(method)
	resp := dynamicpb.NewMessage(md.GetOutputType().UnwrapMessage())
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListDefinitions returns the views matching kind and status; empty
// filters match everything.
func (c *Client) ListDefinitions(ctx context.Context, kind, status string) ([]View, error) {
	req := dynamicpb.NewMessage(c.schema.message("ListDefinitionsRequest"))
	setString(req, "kind", kind)
	setString(req, "status", status)
	resp, err := c.invoke(ctx, "ListDefinitions", req)
	if err != nil {
		return nil, err
	}
	list := resp.Get(field(resp, "definitions")).List()
	out := make([]View, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		out = append(out, decode(list.Get(i).Message()))
	}
	return out, nil
}

func (c *Client) GetDefinition(ctx context.Context, name string) (View, error) {
	req := dynamicpb.NewMessage(c.schema.message("GetDefinitionRequest"))
	req.Set(field(req, "name"), protoreflect.ValueOfString(name))
	resp, err := c.invoke(ctx, "GetDefinition", req)
	if err != nil {
		return View{}, err
	}
	return decode(resp), nil
}
