package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		body, _ := io.ReadAll(r.Body)
		switch string(body) {
		case "face":
			_, _ = w.Write([]byte(`{"face_detected":true,"embedding":[1,2,3]}`))
		case "noface":
			_, _ = w.Write([]byte(`{"face_detected":false}`))
		case "empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "model crashed", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/", func(o *Options) {
		o.Header = http.Header{"X-Api-Key": []string{"secret"}}
	})
	require.NoError(t, err)
	ctx := context.Background()

	v, err := c.Extract(ctx, []byte("face"))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, v)

	v, err = c.Extract(ctx, []byte("noface"))
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = c.Extract(ctx, []byte("empty"))
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = c.Extract(ctx, []byte("boom"))
	assert.ErrorIs(t, err, ErrServer)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
