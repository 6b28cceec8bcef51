package kma

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridfusion/internal/domain"
	"gridfusion/internal/observability"
)

func newTestClient(baseURL string, attempts int) *Client {
	return &Client{
		baseURL:       baseURL,
		authKey:       "test-key",
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		clock:         clockwork.NewRealClock(),
		pause:         0,
		retryAttempts: attempts,
		retryBackoff:  0,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:       observability.NewMetricsForTesting(),
	}
}

func TestParseGridResponse(t *testing.T) {
	t.Run("plain values", func(t *testing.T) {
		got, err := parseGridResponse("# header\n1.5 2.5\n3.5 4.5\n", 4)
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.InDelta(t, 1.5, *got[0], 1e-9)
		assert.InDelta(t, 4.5, *got[3], 1e-9)
	})

	t.Run("strips dimension header pair", func(t *testing.T) {
		got, err := parseGridResponse("2 3\n1 2 3\n4 5 6\n", 6)
		require.NoError(t, err)
		require.Len(t, got, 6)
		assert.InDelta(t, 1.0, *got[0], 1e-9)
		assert.InDelta(t, 6.0, *got[5], 1e-9)
	})

	t.Run("sentinels become missing", func(t *testing.T) {
		got, err := parseGridResponse("-999.0 1.0 2500.0 0.0\n", 4)
		require.NoError(t, err)
		assert.Nil(t, got[0])
		require.NotNil(t, got[1])
		assert.Nil(t, got[2])
		require.NotNil(t, got[3])
		assert.Zero(t, *got[3])
	})

	t.Run("length mismatch is an error", func(t *testing.T) {
		_, err := parseGridResponse("1 2 3\n", 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch")
	})

	t.Run("surplus without matching header pair is an error", func(t *testing.T) {
		_, err := parseGridResponse("9 9 1 2 3 4\n", 4)
		assert.Error(t, err)
	})

	t.Run("comment-only body is an error", func(t *testing.T) {
		_, err := parseGridResponse("# START7777\n# END\n", 4)
		assert.Error(t, err)
	})

	t.Run("no expected size accepts any length", func(t *testing.T) {
		got, err := parseGridResponse("1 2 3\n", 0)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
}

func TestLooksLikeErrorResponse(t *testing.T) {
	assert.True(t, looksLikeErrorResponse("<html><body>Service unavailable</body></html>"))
	assert.True(t, looksLikeErrorResponse("Forbidden: invalid key"))
	assert.True(t, looksLikeErrorResponse(""))
	assert.False(t, looksLikeErrorResponse("# START7777\n1.0 2.0\n"))
}

func TestFetchDayAssemblesAllHours(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, gridEndpoint, r.URL.Path)
		assert.Equal(t, "sd_3hr", r.URL.Query().Get("obs"))
		assert.Equal(t, "test-key", r.URL.Query().Get("authKey"))
		assert.Len(t, r.URL.Query().Get("tm"), 12)
		fmt.Fprintln(w, "# grid\n0.0 1.5 -999.0 3.0")
	}))
	defer srv.Close()

	sd, err := domain.VariableByKey("sd_3hr")
	require.NoError(t, err)

	frame, err := newTestClient(srv.URL, 1).FetchDay(context.Background(), "20230115", sd, 4)
	require.NoError(t, err)

	assert.Equal(t, int64(8), requests.Load(), "one request per 3-hour slot")
	require.Len(t, frame.Rows, 32)
	assert.Equal(t, "sd_3hr", frame.Variable)

	first := frame.Rows[0]
	assert.Equal(t, int64(0), first.GridIdx)
	assert.Equal(t, int32(0), first.Hour)
	require.NotNil(t, first.Value)
	assert.Zero(t, *first.Value)

	assert.Nil(t, frame.Rows[2].Value, "sentinel carried through as missing")
	assert.Equal(t, int32(21), frame.Rows[31].Hour)
}

func TestFetchDayRetriesTransientFailure(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintln(w, "1.0 2.0 3.0 4.0")
	}))
	defer srv.Close()

	ta, err := domain.VariableByKey("ta")
	require.NoError(t, err)

	frame, err := newTestClient(srv.URL, 3).FetchDay(context.Background(), "20230115", ta, 4)
	require.NoError(t, err)
	assert.Len(t, frame.Rows, 24*4)
	assert.Equal(t, int64(25), requests.Load(), "first hour took two attempts")
}

func TestFetchDayExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ta, err := domain.VariableByKey("ta")
	require.NoError(t, err)

	_, err = newTestClient(srv.URL, 2).FetchDay(context.Background(), "20230115", ta, 4)
	var acqErr *domain.AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, domain.Date("20230115"), acqErr.Date)
	assert.Equal(t, "ta", acqErr.Variable)
	assert.Contains(t, err.Error(), "2 attempts")
}

func TestFetchDayForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	rn, err := domain.VariableByKey("rn_60m")
	require.NoError(t, err)

	_, err = newTestClient(srv.URL, 1).FetchDay(context.Background(), "20230115", rn, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFetchDayErrorPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "<html><body>maintenance</body></html>")
	}))
	defer srv.Close()

	ta, err := domain.VariableByKey("ta")
	require.NoError(t, err)

	_, err = newTestClient(srv.URL, 1).FetchDay(context.Background(), "20230115", ta, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error page")
}

func TestFetchDayContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "1.0 2.0 3.0 4.0")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ta, err := domain.VariableByKey("ta")
	require.NoError(t, err)

	_, err = newTestClient(srv.URL, 1).FetchDay(ctx, "20230115", ta, 4)
	assert.Error(t, err)
}
