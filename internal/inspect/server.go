package inspect

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/funvibe/funcore/internal/pipeline"
)

//go:embed inspect.proto
var protoSource string

const (
	protoFile   = "inspect.proto"
	ServiceName = "funcore.inspect.v1.Inspector"
)

// Schema is the parsed inspection protocol.
type Schema struct {
	service *desc.ServiceDescriptor
}

// LoadSchema parses the embedded protocol definition.
func LoadSchema() (*Schema, error) {
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{protoFile: protoSource}),
	}
	fds, err := parser.ParseFiles(protoFile)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", protoFile, err)
	}
	sd := fds[0].FindService(ServiceName)
	if sd == nil {
		return nil, fmt.Errorf("%s: service %s not found", protoFile, ServiceName)
	}
	return &Schema{service: sd}, nil
}

func (s *Schema) method(name string) *desc.MethodDescriptor {
	return s.service.FindMethodByName(name)
}

func (s *Schema) message(name string) protoreflect.MessageDescriptor {
	md := s.service.GetFile().FindMessage("funcore.inspect.v1." + name)
	return md.UnwrapMessage()
}

// Server implements the Inspector service over a definition table.
type Server struct {
	schema *Schema
	table  pipeline.DefinitionTable
	logger *slog.Logger
}

func NewServer(table pipeline.DefinitionTable, logger *slog.Logger) (*Server, error) {
	schema, err := LoadSchema()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{schema: schema, table: table, logger: logger.With("section", "inspect")}, nil
}

type handler func(ctx context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error)

// Register adds the Inspector service to g.
func (s *Server) Register(g *grpc.Server) {
	handlers := map[string]handler{
		"ListDefinitions": s.listDefinitions,
		"GetDefinition":   s.getDefinition,
	}
	sd := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Metadata:    protoFile,
	}
	for _, m := range s.schema.service.GetMethods() {
		md, h := m, handlers[m.GetName()]
		if h == nil {
			continue
		}
		sd.Methods = append(sd.Methods, grpc.MethodDesc{
			MethodName: md.GetName(),
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := dynamicpb.NewMessage(md.GetInputType().UnwrapMessage())
				if err := dec(in); err != nil {
					return nil, err
				}
				return h(ctx, in)
			},
		})
	}
	g.RegisterService(sd, s)
}

func (s *Server) listDefinitions(_ context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error) {
	kind := getString(req, "kind")
	st := getString(req, "status")
	var out []View
	for _, v := range Views(s.table) {
		if (kind == "" || v.Kind == kind) && (st == "" || v.Status == st) {
			out = append(out, v)
		}
	}
	s.logger.Debug("list definitions", "kind", kind, "status", st, "count", len(out))

	resp := dynamicpb.NewMessage(s.schema.message("ListDefinitionsResponse"))
	list := resp.Mutable(field(resp, "definitions")).List()
	for _, v := range out {
		list.Append(protoreflect.ValueOfMessage(s.encode(v)))
	}
	return resp, nil
}

func (s *Server) getDefinition(_ context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error) {
	name := getString(req, "name")
	d, ok := s.table.Lookup(name)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "definition %s not found", name)
	}
	return s.encode(NewView(d, s.table.Instances)), nil
}

func (s *Server) encode(v View) *dynamicpb.Message {
	m := dynamicpb.NewMessage(s.schema.message("Definition"))
	setString(m, "name", v.Name)
	setString(m, "kind", v.Kind)
	setString(m, "status", v.Status)
	setString(m, "type", v.Type)
	setString(m, "body", v.Body)
	setString(m, "universe", v.Universe)
	setString(m, "classifying_field", v.ClassifyingField)
	setString(m, "position", v.Position)
	setStrings(m, "instances", v.Instances)
	setStrings(m, "constructors", v.Constructors)
	params := m.Mutable(field(m, "parameters")).List()
	for _, p := range v.Parameters {
		pm := dynamicpb.NewMessage(s.schema.message("Parameter"))
		setString(pm, "name", p.Name)
		setString(pm, "type", p.Type)
		pm.Set(field(pm, "explicit"), protoreflect.ValueOfBool(p.Explicit))
		params.Append(protoreflect.ValueOfMessage(pm))
	}
	return m
}

func field(m protoreflect.Message, name string) protoreflect.FieldDescriptor {
	return m.Descriptor().Fields().ByName(protoreflect.Name(name))
}

func getString(m protoreflect.Message, name string) string {
	return m.Get(field(m, name)).String()
}

func setString(m protoreflect.Message, name, v string) {
	if v != "" {
		m.Set(field(m, name), protoreflect.ValueOfString(v))
	}
}

func setStrings(m protoreflect.Message, name string, vs []string) {
	if len(vs) == 0 {
		return
	}
	list := m.Mutable(field(m, name)).List()
	for _, v := range vs {
		list.Append(protoreflect.ValueOfString(v))
	}
}

// decode is the inverse of encode.
func decode(m protoreflect.Message) View {
	v := View{
		Name:             getString(m, "name"),
		Kind:             getString(m, "kind"),
		Status:           getString(m, "status"),
		Type:             getString(m, "type"),
		Body:             getString(m, "body"),
		Universe:         getString(m, "universe"),
		ClassifyingField: getString(m, "classifying_field"),
		Position:         getString(m, "position"),
		Instances:        getStrings(m, "instances"),
		Constructors:     getStrings(m, "constructors"),
	}
	params := m.Get(field(m, "parameters")).List()
	for i := 0; i < params.Len(); i++ {
		pm := params.Get(i).Message()
		v.Parameters = append(v.Parameters, Param{
			Name:     getString(pm, "name"),
			Type:     getString(pm, "type"),
			Explicit: pm.Get(field(pm, "explicit")).Bool(),
		})
	}
	return v
}

func getStrings(m protoreflect.Message, name string) []string {
	list := m.Get(field(m, name)).List()
	var out []string
	for i := 0; i < list.Len(); i++ {
		out = append(out, list.Get(i).String())
	}
	return out
}
