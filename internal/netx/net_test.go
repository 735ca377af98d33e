package netx

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload(t *testing.T) {
	payload := []byte("export body")

	t.Run("success 200 OK", func(t *testing.T) {
		var gotMethod, gotQuery string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotQuery = r.URL.RawQuery
			_, _ = w.Write(payload)
		}))
		defer ts.Close()

		var buf bytes.Buffer
		n, err := Download(context.Background(), nil, ts.URL+"/exports/a.ndjson.gz?X-Amz-Signature=abc", &buf)
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), n)
		assert.Equal(t, payload, buf.Bytes())
		assert.Equal(t, http.MethodGet, gotMethod)
		assert.Equal(t, "X-Amz-Signature=abc", gotQuery)
	})

	t.Run("non-200 -> error with body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("<Error><Code>AccessDenied</Code></Error>"))
		}))
		defer ts.Close()

		var buf bytes.Buffer
		_, err := Download(context.Background(), ts.Client(), ts.URL, &buf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403 Forbidden")
		assert.Contains(t, err.Error(), "AccessDenied")
		assert.Zero(t, buf.Len())
	})

	t.Run("network error", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()

		_, err := Download(context.Background(), nil, ts.URL, &bytes.Buffer{})
		require.Error(t, err)
		assert.False(t, strings.Contains(err.Error(), "download failed"))
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := Download(context.Background(), nil, "://nope", &bytes.Buffer{})
		require.Error(t, err)
	})
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDownload_WriterError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer ts.Close()

	_, err := Download(context.Background(), nil, ts.URL, failingWriter{})
	require.ErrorContains(t, err, "disk full")
}
