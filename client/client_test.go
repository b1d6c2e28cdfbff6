package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kendall-kelly/atelier-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestClient_SendsBearerTokenAndDecodesData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/orders/7", r.URL.Path)
		assert.Equal(t, "Bearer designer-token", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, `{"success":true,"data":{"id":7,"order_number":"ORD-20261019-0A1B2C3D","amount":120.5,"status":"Pending","payment_status":"Pending"}}`)
	}))
	defer server.Close()

	c := New(server.URL + "/")
	order, err := c.GetOrder(context.Background(), "designer-token", 7)

	require.NoError(t, err)
	assert.Equal(t, uint(7), order.ID)
	assert.Equal(t, "ORD-20261019-0A1B2C3D", order.OrderNumber)
	assert.True(t, order.Amount.Equal(decimal.RequireFromString("120.5")))
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestClient_ReturnsAPIError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		expectCode string
	}{
		{
			name:       "invalid state",
			status:     http.StatusConflict,
			body:       `{"success":false,"error":{"code":"INVALID_STATE","message":"quote is Rejected","details":{"current_status":"Rejected"}}}`,
			expectCode: "INVALID_STATE",
		},
		{
			name:       "declined payment",
			status:     http.StatusPaymentRequired,
			body:       `{"success":false,"error":{"code":"PAYMENT_DECLINED","message":"payment declined","details":{"reason":"insufficient_funds"}}}`,
			expectCode: "PAYMENT_DECLINED",
		},
		{
			name:       "no envelope",
			status:     http.StatusBadGateway,
			body:       `<html>bad gateway</html>`,
			expectCode: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, tt.status, tt.body)
			}))
			defer server.Close()

			_, err := New(server.URL).AcceptQuote(context.Background(), "token", 3)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.expectCode, apiErr.Code)
		})
	}
}

func TestClient_EncodesRequestBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/quotes", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(12), body["design_id"])
		assert.Equal(t, 149.99, body["price"])
		assert.Equal(t, float64(14), body["delivery_time_in_days"])

		writeEnvelope(w, http.StatusCreated, `{"success":true,"data":{"id":1,"design_id":12,"price":149.99,"status":"Submitted"}}`)
	}))
	defer server.Close()

	quote, err := New(server.URL).SubmitQuote(context.Background(), "supplier-token", NewQuote{
		DesignID:           12,
		Price:              decimal.RequireFromString("149.99"),
		DeliveryTimeInDays: 14,
	})

	require.NoError(t, err)
	assert.Equal(t, models.QuoteStatusSubmitted, quote.Status)
}

func TestClient_GetConversationPassesDesignFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/messages/conversation/4", r.URL.Path)
		assert.Equal(t, "9", r.URL.Query().Get("designId"))
		writeEnvelope(w, http.StatusOK, `{"success":true,"data":[{"id":1,"content":"hello"},{"id":2,"content":"hi"}]}`)
	}))
	defer server.Close()

	designID := uint(9)
	conversation, err := New(server.URL).GetConversation(context.Background(), "token", 4, &designID)

	require.NoError(t, err)
	require.Len(t, conversation, 2)
	assert.Equal(t, "hello", conversation[0].Content)
}

func TestClient_UploadDesignFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "sketch.png", header.Filename)
		assert.Equal(t, "png-bytes", string(content))

		writeEnvelope(w, http.StatusCreated, `{"success":true,"data":{"key":"designs/abc_sketch.png","url":"https://cdn/designs/abc_sketch.png","file_name":"sketch.png","size":9}}`)
	}))
	defer server.Close()

	stored, err := New(server.URL).UploadDesignFile(context.Background(), "token", "sketch.png", strings.NewReader("png-bytes"))

	require.NoError(t, err)
	assert.Equal(t, "designs/abc_sketch.png", stored.Key)
	assert.Equal(t, int64(9), stored.Size)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := New(server.URL, WithTimeout(20*time.Millisecond)).GetUnreadCount(context.Background(), "token")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_WithHTTPClient(t *testing.T) {
	var used atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, `{"success":true,"data":{"count":3}}`)
	}))
	defer server.Close()

	hc := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		used.Store(true)
		return http.DefaultTransport.RoundTrip(r)
	})}

	count, err := New(server.URL, WithHTTPClient(hc)).GetUnreadCount(context.Background(), "token")

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.True(t, used.Load())
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestPoll_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Poll(ctx, 5*time.Millisecond, func(context.Context) { calls.Add(1) })
		close(done)
	}()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poll did not stop after cancel")
	}
}

func TestPoll_FirstCallIsNotDelayed(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Poll(ctx, time.Hour, func(context.Context) { calls.Add(1) })

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
}

func TestPoll_CancelledContextNeverCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	Poll(ctx, time.Millisecond, func(context.Context) { called = true })

	assert.False(t, called)
}

func TestPollUnreadCount_ReportsErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, `{"success":false,"error":{"code":"INVALID_TOKEN","message":"Failed to validate JWT."}}`)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan error, 1)
	go New(server.URL).PollUnreadCount(ctx, "expired", func(_ int64, err error) {
		select {
		case results <- err:
		default:
		}
	})

	select {
	case err := <-results:
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "INVALID_TOKEN", apiErr.Code)
	case <-time.After(time.Second):
		t.Fatal("no poll result")
	}
}
