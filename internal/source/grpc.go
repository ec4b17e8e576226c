package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/bimcheck/internal/element"
)

// #region wire
const (
	// ServiceName is the gRPC service serving element sets.
	ServiceName = "bimcheck.source.v1.ElementSource"
	// ListElementsMethod is the full method name of the unary element call.
	ListElementsMethod = "/" + ServiceName + "/ListElements"
)

// DocumentToStruct encodes a document as the ListElements response message.
func DocumentToStruct(doc Document) (*structpb.Struct, error) {
	items := make([]any, len(doc.Elements))
	for i, el := range doc.Elements {
		m := map[string]any{
			"id":       el.ID,
			"name":     el.Name,
			"category": string(el.Category),
		}
		if el.Properties == nil {
			m["properties"] = nil
		} else {
			props := make(map[string]any, len(el.Properties))
			for k, v := range el.Properties {
				props[k] = v
			}
			m["properties"] = props
		}
		items[i] = m
	}
	s, err := structpb.NewStruct(map[string]any{"label": doc.Label, "elements": items})
	if err != nil {
		return nil, fmt.Errorf("encode elements: %w", err)
	}
	return s, nil
}

// StructToDocument decodes a ListElements response message.
func StructToDocument(s *structpb.Struct) (Document, error) {
	if s == nil {
		return Document{}, fmt.Errorf("%w: empty response", ErrBadDocument)
	}
	if _, ok := s.GetFields()["elements"]; !ok {
		return Document{}, fmt.Errorf("%w: response has no elements field", ErrBadDocument)
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	return DecodeDocument(data)
}

// #endregion wire

// #region client
// GRPCOptions tunes the gRPC element source client.
type GRPCOptions struct {
	Source         string        // element set name sent to the server
	Timeout        time.Duration // per attempt
	Retries        int           // retries after the first attempt
	InitialBackoff time.Duration
}

// GRPCClient fetches element sets from a remote ElementSource service.
// Unavailable and deadline errors are retried with exponential backoff.
type GRPCClient struct {
	cc     grpc.ClientConnInterface
	closer io.Closer
	opts   GRPCOptions

	mu    sync.Mutex
	label string
}

// NewGRPCClient connects to addr.
func NewGRPCClient(addr string, opts GRPCOptions) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	c := NewGRPCClientWithConn(conn, opts)
	c.closer = conn
	return c, nil
}

// NewGRPCClientWithConn creates a client over an existing connection.
func NewGRPCClientWithConn(cc grpc.ClientConnInterface, opts GRPCOptions) *GRPCClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 200 * time.Millisecond
	}
	return &GRPCClient{cc: cc, opts: opts}
}

// Close shuts down the connection if the client owns it.
func (c *GRPCClient) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Elements calls ListElements.
func (c *GRPCClient) Elements(ctx context.Context) ([]element.Element, error) {
	req, err := structpb.NewStruct(map[string]any{"source": c.opts.Source})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var reply *structpb.Struct
	var callErr error
	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		out := new(structpb.Struct)
		callErr = c.cc.Invoke(attemptCtx, ListElementsMethod, req, out)
		if callErr == nil {
			reply = out
			return nil
		}
		if retryable(callErr) {
			return callErr
		}
		// stop retrying; callErr is reported below
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.InitialBackoff
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.opts.Retries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("list elements rpc: %w", err)
	}
	if callErr != nil {
		return nil, fmt.Errorf("list elements rpc: %w", callErr)
	}

	doc, err := StructToDocument(reply)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.label = doc.Label
	c.mu.Unlock()
	return doc.Elements, nil
}

// Label is the label of the last fetched element set, else the source name.
func (c *GRPCClient) Label() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.label != "" {
		return c.label
	}
	return c.opts.Source
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}

// #endregion client

// #region server
// ElementLister is the server side of the ElementSource service.
type ElementLister interface {
	ListElements(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var elementSourceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ElementLister)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListElements", Handler: listElementsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bimcheck/source/v1/source.proto",
}

// RegisterElementServer registers srv on s.
func RegisterElementServer(s grpc.ServiceRegistrar, srv ElementLister) {
	s.RegisterService(&elementSourceDesc, srv)
}

func listElementsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ElementLister).ListElements(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListElementsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ElementLister).ListElements(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// DirServer serves the JSON element files of one directory by name.
type DirServer struct {
	Dir      string
	MaxBytes int64
}

// ListElements loads the file named by the request's "source" field.
func (d DirServer) ListElements(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := req.GetFields()["source"].GetStringValue()
	if name == "" || !filepath.IsLocal(name) {
		return nil, status.Errorf(codes.InvalidArgument, "invalid source name %q", name)
	}

	f := NewJSONFile(filepath.Join(d.Dir, name), d.MaxBytes)
	elements, err := f.Elements(ctx)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, status.Errorf(codes.NotFound, "element set %q not found", name)
	case errors.Is(err, ErrTooLarge):
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	case err != nil:
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := DocumentToStruct(Document{Label: f.Label(), Elements: elements})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// #endregion server
