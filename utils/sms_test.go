package utils

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSMSClient(url string) *SMSClient {
	log := logrus.New()
	log.SetOutput(io.Discard)

	c := NewSMSClient(url, "key", "GYM", 2, time.Second, log)
	c.http.RetryWaitMin = time.Millisecond
	c.http.RetryWaitMax = 5 * time.Millisecond
	return c
}

func TestSMSClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req smsRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "GYM", req.From)
		assert.Equal(t, "+10000000001", req.To)

		_, _ = w.Write([]byte(`{"result":"ok","message_id":"m-1"}`))
	}))
	defer srv.Close()

	id, err := newTestSMSClient(srv.URL).Send(context.Background(), "+10000000001", "hello")
	require.NoError(t, err)
	require.Equal(t, "m-1", id)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestSMSClient_RejectedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"error","error":{"message":"invalid number"}}`))
	}))
	defer srv.Close()

	_, err := newTestSMSClient(srv.URL).Send(context.Background(), "nope", "hello")
	require.ErrorIs(t, err, ErrSMSRejected)
	require.Contains(t, err.Error(), "invalid number")
}

func TestSMSClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad sender"}}`))
	}))
	defer srv.Close()

	_, err := newTestSMSClient(srv.URL).Send(context.Background(), "+10000000001", "hello")
	require.ErrorIs(t, err, ErrSMSRejected)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
