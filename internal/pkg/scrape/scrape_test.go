package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBody = `# HELP seastar_test_group_counter_1 counter_1
# TYPE seastar_test_group_counter_1 counter
seastar_test_group_counter_1{shard="0"} 1.000000
seastar_test_group_counter_1{shard="1"} 2.000000
`

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	return NewClient(Config{Addr: u.Host, Timeout: 5 * time.Second})
}

func TestClientURL(t *testing.T) {
	c := NewClient(Config{Addr: "localhost:10001"})

	got := c.URL(Params{
		Name:        "test_group_counter_1",
		Labels:      map[string]string{"private": "2|3"},
		NoHelp:      true,
		NoAggregate: true,
	})

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "localhost:10001", u.Host)
	assert.Equal(t, "/metrics", u.Path)

	q := u.Query()
	assert.Equal(t, "test_group_counter_1", q.Get("__name__"))
	assert.Equal(t, "2|3", q.Get("private"))
	assert.Equal(t, "false", q.Get("__help__"))
	assert.Equal(t, "false", q.Get("__aggregate__"))
}

func TestClientURL_DefaultsOmitted(t *testing.T) {
	c := NewClient(Config{Addr: "localhost:10001"})

	u, err := url.Parse(c.URL(Params{}))
	require.NoError(t, err)
	assert.Empty(t, u.RawQuery)
}

func TestFetch(t *testing.T) {
	var gotQuery url.Values
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(testBody))
	})

	m, err := c.Fetch(context.Background(), Params{Name: "test_group_counter_1"})
	require.NoError(t, err)
	assert.Equal(t, "test_group_counter_1", gotQuery.Get("__name__"))

	records, err := m.Query("seastar_test_group_counter_1", nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1.0, records[0].Value)
	assert.Equal(t, 2.0, records[1].Value)
}

func TestFetch_ErrorStatus(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	_, err := c.Fetch(context.Background(), Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status_code: 500")
}

func TestValidate(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testBody))
	})

	families, err := c.Validate(context.Background(), Params{})
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "seastar_test_group_counter_1", families[0].GetName())
	assert.Len(t, families[0].GetMetric(), 2)
}

func TestValidate_Malformed(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is { not valid exposition 1 2 3\n"))
	})

	_, err := c.Validate(context.Background(), Params{})
	require.Error(t, err)
}

func TestFetch_ContextCancelled(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(testBody))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, Params{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "context canceled"))
}
