package source

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/bimcheck/internal/element"
)

// #region helpers
func startServer(t *testing.T, srv ElementLister) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterElementServer(gs, srv)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// flakyConn fails the first failures calls with code, then answers with doc.
type flakyConn struct {
	failures int32
	code     codes.Code
	doc      Document
	calls    atomic.Int32
}

func (f *flakyConn) Invoke(_ context.Context, method string, _ any, reply any, _ ...grpc.CallOption) error {
	n := f.calls.Add(1)
	if method != ListElementsMethod {
		return status.Error(codes.Unimplemented, method)
	}
	if n <= f.failures {
		return status.Error(f.code, "try again")
	}
	s, err := DocumentToStruct(f.doc)
	if err != nil {
		return err
	}
	reply.(*structpb.Struct).Fields = s.Fields
	return nil
}

func (f *flakyConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, status.Error(codes.Unimplemented, "streams")
}

// #endregion helpers

func TestDocumentStructRoundTrip(t *testing.T) {
	doc := Document{
		Label: "Tower A",
		Elements: []element.Element{
			{ID: "w1", Name: "Wall", Category: element.Wall, Properties: map[string]string{"material": "C30"}},
			{ID: "m1", Name: "Broken", Category: element.Unclassified},
		},
	}
	s, err := DocumentToStruct(doc)
	require.NoError(t, err)

	got, err := StructToDocument(s)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
	assert.True(t, got.Elements[1].Malformed())

	_, err = StructToDocument(&structpb.Struct{})
	assert.ErrorIs(t, err, ErrBadDocument)
}

func TestGRPCClientOverBufconn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tower.json", sampleDoc)
	conn := startServer(t, DirServer{Dir: dir})

	c := NewGRPCClientWithConn(conn, GRPCOptions{Source: "tower.json", Timeout: 5 * time.Second})
	els, err := c.Elements(context.Background())
	require.NoError(t, err)
	require.Len(t, els, 4)
	assert.Equal(t, element.Wall, els[0].Category)
	assert.Equal(t, "C30/37", els[0].Properties["material"])
	assert.True(t, els[3].Malformed())
	assert.Equal(t, "Tower A", c.Label())
	assert.NoError(t, c.Close())
}

func TestGRPCServerErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.json", `[                                                  ]`)
	conn := startServer(t, DirServer{Dir: dir, MaxBytes: 10})

	cases := map[string]codes.Code{
		"missing.json":   codes.NotFound,
		"../escape.json": codes.InvalidArgument,
		"big.json":       codes.ResourceExhausted,
		"":               codes.InvalidArgument,
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			c := NewGRPCClientWithConn(conn, GRPCOptions{Source: name, Retries: 3, InitialBackoff: time.Millisecond})
			_, err := c.Elements(context.Background())
			require.Error(t, err)
			assert.Equal(t, want, status.Code(err))
		})
	}
}

func TestGRPCClientRetriesUnavailable(t *testing.T) {
	fc := &flakyConn{failures: 2, code: codes.Unavailable, doc: Document{Label: "L", Elements: []element.Element{{ID: "a", Properties: map[string]string{}}}}}
	c := NewGRPCClientWithConn(fc, GRPCOptions{Retries: 3, InitialBackoff: time.Millisecond})

	els, err := c.Elements(context.Background())
	require.NoError(t, err)
	assert.Len(t, els, 1)
	assert.Equal(t, int32(3), fc.calls.Load())
}

func TestGRPCClientGivesUpAfterRetries(t *testing.T) {
	fc := &flakyConn{failures: 100, code: codes.Unavailable}
	c := NewGRPCClientWithConn(fc, GRPCOptions{Retries: 2, InitialBackoff: time.Millisecond})

	_, err := c.Elements(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), fc.calls.Load())
}

func TestGRPCClientDoesNotRetryPermanentErrors(t *testing.T) {
	fc := &flakyConn{failures: 100, code: codes.InvalidArgument}
	c := NewGRPCClientWithConn(fc, GRPCOptions{Retries: 5, InitialBackoff: time.Millisecond})

	_, err := c.Elements(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), fc.calls.Load())
}
