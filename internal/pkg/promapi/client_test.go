package promapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scalarResponse = `{
  "status": "success",
  "data": {
    "resultType": "vector",
    "result": [
      {
        "metric": {"__name__": "seastar_test_group_counter_1", "instance": "localhost:10001"},
        "value": [1724928000.123, "3"]
      }
    ]
  }
}`

const histogramResponse = `{
  "status": "success",
  "data": {
    "resultType": "vector",
    "result": [
      {
        "metric": {"__name__": "seastar_test_group_histogram_1"},
        "histogram": [
          1724928000.123,
          {
            "count": "5",
            "sum": "33",
            "buckets": [
              [0, "2", "4", "3"],
              [0, "8", "16", "2"]
            ]
          }
        ]
      }
    ]
  }
}`

const emptyResponse = `{"status": "success", "data": {"resultType": "vector", "result": []}}`

func testClient(t *testing.T, body string) (*Client, *url.Values) {
	t.Helper()

	gotQuery := &url.Values{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	return NewClient(u.Host), gotQuery
}

func TestQuery_Scalar(t *testing.T) {
	c, gotQuery := testClient(t, scalarResponse)

	r, err := c.Query(context.Background(), "seastar_test_group_counter_1", "counter")
	require.NoError(t, err)

	assert.Equal(t, "seastar_test_group_counter_1", gotQuery.Get("query"))
	require.False(t, r.IsHistogram())
	assert.Equal(t, 3.0, r.Value)
}

func TestQuery_NativeHistogram(t *testing.T) {
	c, _ := testClient(t, histogramResponse)

	r, err := c.Query(context.Background(), "seastar_test_group_histogram_1", "histogram")
	require.NoError(t, err)

	require.True(t, r.IsHistogram())
	// bounds 4 and 16 map to the buckets of values 3 and 15
	assert.Equal(t, map[float64]float64{3: 3, 14: 2}, r.Buckets)
}

func TestQuery_NoResults(t *testing.T) {
	c, _ := testClient(t, emptyResponse)

	_, err := c.Query(context.Background(), "seastar_test_group_counter_1", "counter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no results")
}

func TestQuery_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":"error"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	_, err = NewClient(u.Host).Query(context.Background(), "bad{query", "counter")
	require.Error(t, err)
}

func TestQuery_MalformedHistogram(t *testing.T) {
	c, _ := testClient(t, `{
  "status": "success",
  "data": {"resultType": "vector", "result": [
    {"metric": {}, "histogram": [1, {"buckets": [[0, "2", "4"]]}]}
  ]}
}`)

	_, err := c.Query(context.Background(), "q", "histogram")
	require.Error(t, err)
}
