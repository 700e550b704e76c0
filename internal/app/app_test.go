package app

import (
	"bufio"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vldzyzy/boneserver/internal/inference"
	"github.com/vldzyzy/boneserver/internal/metrics"
)

type fakePredictor struct {
	delay chan struct{}
}

func (f *fakePredictor) PredictBatch(images [][]byte) []inference.PredictOutcome {
	if f.delay != nil {
		<-f.delay
	}
	out := make([]inference.PredictOutcome, len(images))
	for i := range images {
		out[i] = inference.PredictOutcome{ResultStr: `{"is_valid":true}`}
	}
	return out
}

func newTestApp(t *testing.T, addr string, predictor inference.Predictor) *App {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("hello"), 0o644))

	dispatcher := inference.New(predictor, 8, 1)
	dispatcher.Start()

	a, err := New("apptest", addr, 1, root, 0, dispatcher, metrics.New())
	require.NoError(t, err)

	go a.Start()
	t.Cleanup(a.Stop)
	return a
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 100; i++ {
		conn, err = net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	return nil
}

func TestStaticRouteServesCachedFile(t *testing.T) {
	const addr = "127.0.0.1:18271"
	newTestApp(t, addr, &fakePredictor{})

	conn := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	body, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Contains(t, string(body), "200")
	assert.Contains(t, string(body), "hello")
}

func TestHealthzRouteReturnsOK(t *testing.T) {
	const addr = "127.0.0.1:18276"
	newTestApp(t, addr, &fakePredictor{})

	conn := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("GET /healthz HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	body, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Contains(t, string(body), "200")
	assert.Contains(t, string(body), "ok")
}

func TestUnknownRouteReturns404(t *testing.T) {
	const addr = "127.0.0.1:18272"
	newTestApp(t, addr, &fakePredictor{})

	conn := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("GET /nope HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	body, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Contains(t, string(body), "404")
}

func TestMalformedRequestReturns400(t *testing.T) {
	const addr = "127.0.0.1:18273"
	newTestApp(t, addr, &fakePredictor{})

	conn := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("NOTAMETHOD not a request line\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	body, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Contains(t, string(body), "400")
}

func TestPredictRouteRespondsWithInferenceResult(t *testing.T) {
	const addr = "127.0.0.1:18274"
	newTestApp(t, addr, &fakePredictor{})

	conn := dial(t, addr)
	defer conn.Close()

	const boundary = "XYZ"
	body := "--" + boundary + "\r\n" +
		"Content-Disposition: form-data; name=\"image\"; filename=\"x.jpg\"\r\n\r\n" +
		"not-a-real-jpeg-but-long-enough\r\n" +
		"--" + boundary + "--\r\n"
	req := "POST /predict HTTP/1.1\r\n" +
		"Host: x\r\n" +
		"Content-Type: multipart/form-data; boundary=" + boundary + "\r\n" +
		"Content-Length: " + itoa(len(body)) + "\r\n" +
		"Connection: close\r\n\r\n" + body

	_, err := conn.Write([]byte(req))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "200")

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Contains(t, string(rest), "is_valid")
}

// TestPredictCallbackSkipsSendAfterClientAbort exercises spec.md's
// client-abort-mid-inference safety property (S6): if the connection
// closes while a predict task is still in flight, the eventual
// OnComplete callback must not write to (or panic on) the now-dead fd.
func TestPredictCallbackSkipsSendAfterClientAbort(t *testing.T) {
	const addr = "127.0.0.1:18275"
	delay := make(chan struct{})
	newTestApp(t, addr, &fakePredictor{delay: delay})

	conn := dial(t, addr)

	const boundary = "XYZ"
	body := "--" + boundary + "\r\n" +
		"Content-Disposition: form-data; name=\"image\"; filename=\"x.jpg\"\r\n\r\n" +
		"not-a-real-jpeg-but-long-enough\r\n" +
		"--" + boundary + "--\r\n"
	req := "POST /predict HTTP/1.1\r\n" +
		"Host: x\r\n" +
		"Content-Type: multipart/form-data; boundary=" + boundary + "\r\n" +
		"Content-Length: " + itoa(len(body)) + "\r\n" +
		"Connection: close\r\n\r\n" + body

	_, err := conn.Write([]byte(req))
	require.NoError(t, err)

	// Abort before the (still-blocked) predictor ever returns.
	conn.Close()
	time.Sleep(50 * time.Millisecond)

	close(delay)
	// Give the completion callback time to run; IsConnected's guard in
	// predictHandler.OnComplete must prevent a write/panic on the closed fd.
	time.Sleep(100 * time.Millisecond)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
