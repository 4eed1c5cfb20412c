package httpclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mobarasa/roamtech-cypress/internal/httpclient"
	"github.com/mobarasa/roamtech-cypress/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestResolvesRelativeURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/posts/1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":1,"title":"hello"}`))
	}))
	defer srv.Close()

	c := httpclient.New(srv.URL+"/", time.Second, srv.Client())

	res, err := c.Get(context.Background(), "posts/1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)

	var post struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	}
	require.NoError(t, httpclient.DecodeJSON(res, &post))
	assert.Equal(t, 1, post.ID)
	assert.Equal(t, "hello", post.Title)
}

func TestRequestSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "token", r.Header.Get("Authorization"))
		assert.JSONEq(t, `{"title":"foo"}`, string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := httpclient.New(srv.URL, 0, nil)

	body, err := httpclient.EncodeJSON(map[string]string{"title": "foo"})
	require.NoError(t, err)

	res, err := c.Request(context.Background(), model.Request{
		Method:  http.MethodPost,
		URL:     "/posts",
		Body:    body,
		Headers: http.Header{"Authorization": []string{"token"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.Status)
}

func TestRequestIsCancelledWithContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := httpclient.New(srv.URL, 50*time.Millisecond, nil)

	_, err := c.Get(context.Background(), "/slow")
	assert.Error(t, err)
}
