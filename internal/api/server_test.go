package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/velesar/aiwisper-engine/internal/capture"
	"github.com/velesar/aiwisper-engine/internal/coordinator"
)

type fakeBackend struct{}

func (fakeBackend) Transcribe(samples []float32, languageHint string) (string, error) {
	return fmt.Sprintf("text(%d)", len(samples)), nil
}
func (fakeBackend) IsLoaded() bool            { return true }
func (fakeBackend) ModelName() (string, bool) { return "fake", true }
func (fakeBackend) LoadModel(string) error    { return nil }

type fakeCapturer struct {
	buf *capture.SharedBuffer
}

func newFakeCapturer(samples []float32) *fakeCapturer {
	buf := capture.NewSharedBuffer()
	buf.Append(samples)
	return &fakeCapturer{buf: buf}
}

func (f *fakeCapturer) Start() error { return nil }
func (f *fakeCapturer) Stop() (<-chan capture.CompletionSignal, error) {
	ch := make(chan capture.CompletionSignal, 1)
	ch <- capture.CompletionSignal{Samples: f.buf.All()}
	return ch, nil
}
func (f *fakeCapturer) Amplitude() float32               { return 0.42 }
func (f *fakeCapturer) IsRecording() bool                { return true }
func (f *fakeCapturer) SharedBuffer() *capture.SharedBuffer { return f.buf }

func newTestServer(t *testing.T, grpcAddr string) *Server {
	t.Helper()
	samples := make([]float32, 32000) // 2s @ 16kHz, clears the TooShort floor
	cfg := coordinator.Config{Language: "en"}
	coord := coordinator.New(cfg, fakeBackend{}, nil, nil, nil,
		func() (capture.Capturer, error) { return newFakeCapturer(samples), nil },
		func() capture.Capturer { return newFakeCapturer(nil) },
	)
	return NewServer(Config{GRPCAddr: grpcAddr}, coord)
}

func TestProcessMessageDictationRoundTrip(t *testing.T) {
	s := newTestServer(t, "")

	var got []Message
	send := func(m Message) error {
		got = append(got, m)
		return nil
	}

	s.processMessage(send, Message{Type: "start_dictation"})
	require.Len(t, got, 1)
	require.Equal(t, "state", got[0].Type)
	require.Equal(t, "recording", got[0].Status)

	s.processMessage(send, Message{Type: "stop_dictation"})
	require.Len(t, got, 2)
	require.Equal(t, "dictation_result", got[1].Type)
	require.Contains(t, got[1].Text, "text(")
}

func TestProcessMessageUnknownTypeReturnsError(t *testing.T) {
	s := newTestServer(t, "")

	var got Message
	s.processMessage(func(m Message) error { got = m; return nil }, Message{Type: "bogus"})
	require.Equal(t, "error", got.Type)
	require.Contains(t, got.Error, "bogus")
}

func TestWebSocketBroadcastsSegmentText(t *testing.T) {
	s := newTestServer(t, "")

	httpSrv := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond) // let addClient register before broadcasting
	s.broadcast(Message{Type: "segment_text", Text: "hello"})

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "segment_text", msg.Type)
	require.Equal(t, "hello", msg.Text)
}

// jsonClient is a lightweight gRPC JSON client for the Control stream,
// mirroring a real control-plane collaborator.
type jsonClient struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
}

func newJSONClient(t *testing.T, addr string) *jsonClient {
	t.Helper()
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
		grpc.WithContextDialer(func(ctx context.Context, target string) (net.Conn, error) {
			return net.DialTimeout("unix", strings.TrimPrefix(target, "unix:"), 3*time.Second)
		}),
	)
	require.NoError(t, err)

	stream, err := conn.NewStream(context.Background(), &_Control_serviceDesc.Streams[0], "/aiwisper.Control/Stream")
	require.NoError(t, err)
	return &jsonClient{conn: conn, stream: stream}
}

func (c *jsonClient) send(msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var any interface{}
	if err := json.Unmarshal(raw, &any); err != nil {
		return err
	}
	return c.stream.SendMsg(any)
}

func (c *jsonClient) recv(timeout time.Duration) (Message, error) {
	var msg Message
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.stream.RecvMsg(&msg) }()
	select {
	case err := <-done:
		return msg, err
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *jsonClient) close() {
	_ = c.stream.CloseSend()
	_ = c.conn.Close()
}

func TestControlStreamStartDictation(t *testing.T) {
	socket := t.TempDir() + "/aiwisper-test.sock"
	s := newTestServer(t, "unix:"+socket)
	go s.startGRPCServer()
	time.Sleep(200 * time.Millisecond)

	client := newJSONClient(t, "unix:"+socket)
	defer client.close()

	require.NoError(t, client.send(Message{Type: "start_dictation"}))
	msg, err := client.recv(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "state", msg.Type)
	require.Equal(t, "recording", msg.Status)
}
