package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{Endpoint: srv.URL + "/graphql", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestDoDecodesData(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "users")
		assert.EqualValues(t, 5, req.Variables["limit"])
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"data":{"users":[{"id":"1","name":"Ann"}]}}`))
	})

	var out struct {
		Users []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"users"`
	}
	err := c.Do(context.Background(), `query Users($limit: Int!) { users(limit: $limit) { id name } }`, map[string]interface{}{"limit": 5}, &out)
	require.NoError(t, err)
	require.Len(t, out.Users, 1)
	assert.Equal(t, "Ann", out.Users[0].Name)
}

func TestDoReturnsGraphQLErrors(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"boom","path":["sendKudos"]},{"message":"again"}]}`))
	})

	err := c.Do(context.Background(), `mutation { sendKudos }`, nil, nil)
	var gqlErr *Error
	require.True(t, errors.As(err, &gqlErr))
	assert.Len(t, gqlErr.Messages, 2)
	assert.Equal(t, "graphql: boom; again", err.Error())
}

func TestDoUnauthorized(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	assert.ErrorIs(t, c.Do(context.Background(), `query { kudos { id } }`, nil, nil), ErrUnauthorized)
}

func TestDoServerError(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	assert.ErrorIs(t, c.Do(context.Background(), `query { kudos { id } }`, nil, nil), ErrUnavailable)
}

func TestDoContextCanceled(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Do(ctx, `query { kudos { id } }`, nil, nil), context.DeadlineExceeded)
}

func TestOperationName(t *testing.T) {
	assert.Equal(t, "Users", operationName(`query Users($limit: Int!) { users }`))
	assert.Equal(t, "SendKudos", operationName(`mutation SendKudos{ x }`))
	assert.Equal(t, "anonymous", operationName(`{ users { id } }`))
}
