package azure_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/DMarby/image-resizer/internal/health"
	"github.com/DMarby/image-resizer/internal/logger"
	"github.com/DMarby/image-resizer/internal/storage/memory"
	"github.com/DMarby/image-resizer/internal/tracing/test"
	"github.com/DMarby/image-resizer/internal/trigger/azure"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type call struct {
	Name    string
	Data    []byte
	Fetched bool
}

type recorder struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (r *recorder) Handle(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, call{Name: name, Fetched: true})
	return r.err
}

func (r *recorder) HandleBlob(ctx context.Context, name string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, call{Name: name, Data: data})
	return r.err
}

func setup(t *testing.T, pipeline azure.Pipeline) *httptest.Server {
	log := logger.New(zap.FatalLevel)
	t.Cleanup(func() { log.Sync() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	checker := &health.Checker{Ctx: ctx, Destination: memory.New(), BlobName: "healthcheck", Log: log}
	checker.Run()

	server := &azure.Server{
		Pipeline:      pipeline,
		HealthChecker: checker,
		Log:           log,
		Tracer:        test.Tracer(log),
	}

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return ts
}

func invoke(t *testing.T, ts *httptest.Server, body string) (*http.Response, azure.InvokeResponse) {
	res, err := http.Post(ts.URL+"/ResizeImage", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()

	var out azure.InvokeResponse
	if res.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	}

	return res, out
}

func TestInvoke(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})

	tests := []struct {
		Name     string
		Body     string
		Expected call
	}{
		{
			"base64 data",
			`{"Data":{"inputStream":"` + encoded + `"},"Metadata":{"name":"shoe.png"}}`,
			call{Name: "shoe.png", Data: []byte{0x89, 'P', 'N', 'G'}},
		},
		{
			"raw data",
			`{"Data":{"inputStream":"not base64!"},"Metadata":{"name":"shoe.png"}}`,
			call{Name: "shoe.png", Data: []byte("not base64!")},
		},
		{
			"no data",
			`{"Data":{},"Metadata":{"name":"dir/shoe.png"}}`,
			call{Name: "dir/shoe.png", Fetched: true},
		},
		{
			"null data",
			`{"Data":{"inputStream":null},"Metadata":{"name":"shoe.png","Uri":"https://example.test/shoe.png"}}`,
			call{Name: "shoe.png", Fetched: true},
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			r := &recorder{}
			ts := setup(t, r)

			res, out := invoke(t, ts, test.Body)
			require.Equal(t, http.StatusOK, res.StatusCode)
			require.NotNil(t, out.Outputs)
			require.Nil(t, out.ReturnValue)
			require.NotEmpty(t, res.Header.Get("X-Request-Id"))

			require.Equal(t, []call{test.Expected}, r.calls)
		})
	}
}

func TestInvokeError(t *testing.T) {
	ts := setup(t, &recorder{err: errors.New("boom")})

	res, out := invoke(t, ts, `{"Data":{},"Metadata":{"name":"shoe.png"}}`)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	require.Len(t, out.Logs, 1)
	require.Contains(t, out.Logs[0], "boom")
}

func TestInvokeBadRequest(t *testing.T) {
	tests := []struct {
		Name string
		Body string
	}{
		{"invalid json", `{`},
		{"missing name", `{"Data":{},"Metadata":{}}`},
		{"non-string name", `{"Data":{},"Metadata":{"name":5}}`},
		{"non-string binding", `{"Data":{"inputStream":{"a":1}},"Metadata":{"name":"shoe.png"}}`},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			r := &recorder{}
			ts := setup(t, r)

			res, _ := invoke(t, ts, test.Body)
			require.Equal(t, http.StatusBadRequest, res.StatusCode)
			require.Empty(t, r.calls)
		})
	}
}

func TestHealthAndNotFound(t *testing.T) {
	ts := setup(t, &recorder{})

	res, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(ts.URL + "/a/b")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestListenAddress(t *testing.T) {
	t.Setenv(azure.PortEnv, "")
	require.Equal(t, ":8080", azure.ListenAddress(":8080"))

	t.Setenv(azure.PortEnv, "7071")
	require.Equal(t, ":7071", azure.ListenAddress(":8080"))
}
