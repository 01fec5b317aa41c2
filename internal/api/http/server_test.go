package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandi-exchange/negotiation-hub/internal/application/dispatch"
	appNegotiation "github.com/mandi-exchange/negotiation-hub/internal/application/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/memory"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/metrics"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/phrasing"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/pricing"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/sse"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/translation"
)

type testServer struct {
	handler    http.Handler
	registry   *appNegotiation.Registry
	dispatcher *dispatch.Dispatcher
	hub        *sse.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	m := metrics.New()
	hub := sse.NewHub()
	d := dispatch.NewDispatcher(hub, memory.NewPendingStore(), m, dispatch.Config{
		Workers:         2,
		QueueSize:       64,
		MaxRetries:      0,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}, zerolog.Nop())
	d.Start()

	bands, err := pricing.NewStatic(map[string]string{"tomato": "100-160"})
	require.NoError(t, err)
	reg := appNegotiation.NewRegistry(memory.NewLedger(), appNegotiation.Collaborators{
		Translator: translation.NewGlossary(),
		Oracle:     bands,
		Advisor:    phrasing.NewAdvisor(),
	}, nil, d, m, appNegotiation.DefaultConfig(), zerolog.Nop())

	t.Cleanup(func() {
		reg.Close()
		d.Stop()
		hub.Stop()
	})
	return &testServer{
		handler:    NewServer(reg, d, hub, m, zerolog.Nop()).Router(),
		registry:   reg,
		dispatcher: d,
		hub:        hub,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) start(t *testing.T, product string) *negotiation.Session {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/negotiations", map[string]interface{}{
		"buyerId":        "buyer-1",
		"vendorId":       "vendor-1",
		"productId":      product,
		"location":       "Pune, Maharashtra",
		"buyerLanguage":  "hi",
		"vendorLanguage": "mr",
		"initialOffer":   "100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s negotiation.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	return &s
}

func decodeOutcome(t *testing.T, rec *httptest.ResponseRecorder) outcomeResponse {
	t.Helper()
	var out outcomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestNegotiationFlow(t *testing.T) {
	ts := newTestServer(t)
	s := ts.start(t, "tomato")
	assert.Equal(t, negotiation.StatusOfferPending, s.Status)
	require.NotNil(t, s.Terms.Band)

	path := "/v1/negotiations/" + s.ID.String()
	rec := ts.do(t, http.MethodPost, path+"/offers", map[string]interface{}{
		"partyId": "vendor-1",
		"value":   140,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	counter := decodeOutcome(t, rec)
	assert.Equal(t, negotiation.KindCounterOffer, counter.Event.Kind)
	assert.Equal(t, negotiation.StatusCountered, counter.Session.Status)

	rec = ts.do(t, http.MethodPost, path+"/messages", map[string]interface{}{
		"actor": "buyer",
		"text":  "price kam karo",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	msg := decodeOutcome(t, rec)
	assert.Equal(t, "hi", msg.Event.SourceLang)
	assert.Equal(t, "mr", msg.Event.TargetLang)

	rec = ts.do(t, http.MethodPost, path+"/accept", map[string]interface{}{
		"partyId": "buyer-1",
		"refSeq":  counter.Event.Seq,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	agreed := decodeOutcome(t, rec)
	assert.Equal(t, negotiation.StatusAgreed, agreed.Session.Status)
	require.NotNil(t, agreed.Session.AgreedValue)
	assert.Equal(t, "140", agreed.Session.AgreedValue.String())

	rec = ts.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, path+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Items []*negotiation.OfferEvent `json:"items"`
		Count int                       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Equal(t, 4, history.Count)
	assert.Equal(t, negotiation.KindAccept, history.Items[3].Kind)

	rec = ts.do(t, http.MethodGet, path+"/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report negotiation.ChainReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Valid)
	assert.Equal(t, 4, report.Length)
}

func TestCommandErrors(t *testing.T) {
	ts := newTestServer(t)
	s := ts.start(t, "tomato")
	path := "/v1/negotiations/" + s.ID.String()

	tests := []struct {
		name   string
		path   string
		body   map[string]interface{}
		status int
		code   string
	}{
		{"out of turn", path + "/offers", map[string]interface{}{"actor": "buyer", "value": "110"}, http.StatusConflict, "OUT_OF_TURN"},
		{"non positive", path + "/offers", map[string]interface{}{"actor": "vendor", "value": "-5"}, http.StatusBadRequest, "INVALID_OFFER"},
		{"not a number", path + "/offers", map[string]interface{}{"actor": "vendor", "value": "NaN"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"outside guard", path + "/offers", map[string]interface{}{"actor": "vendor", "value": "9000"}, http.StatusBadRequest, "INVALID_OFFER"},
		{"stranger", path + "/offers", map[string]interface{}{"partyId": "someone", "value": "120"}, http.StatusBadRequest, "INVALID_ACTOR"},
		{"side mismatch", path + "/offers", map[string]interface{}{"partyId": "vendor-1", "actor": "buyer", "value": "120"}, http.StatusBadRequest, "INVALID_ACTOR"},
		{"no caller", path + "/messages", map[string]interface{}{"text": "hello"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown field", path + "/messages", map[string]interface{}{"actor": "vendor", "text": "hi", "extra": 1}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"own offer", path + "/accept", map[string]interface{}{"actor": "buyer"}, http.StatusConflict, "OUT_OF_TURN"},
		{"bad id", "/v1/negotiations/not-a-uuid/offers", map[string]interface{}{"actor": "vendor", "value": "120"}, http.StatusBadRequest, "INVALID_PARAM"},
		{"unknown session", "/v1/negotiations/00000000-0000-0000-0000-000000000001/offers", map[string]interface{}{"actor": "vendor", "value": "120"}, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	rec := ts.do(t, http.MethodGet, path+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestStartNegotiation_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.start(t, "tomato")

	tests := []struct {
		name   string
		body   map[string]interface{}
		status int
		code   string
	}{
		{"duplicate tuple", map[string]interface{}{"buyerId": "buyer-1", "vendorId": "vendor-1", "productId": "tomato"}, http.StatusConflict, "DUPLICATE_SESSION"},
		{"missing buyer", map[string]interface{}{"vendorId": "vendor-1", "productId": "onion"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"same party", map[string]interface{}{"buyerId": "x", "vendorId": "x", "productId": "onion"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unsupported language", map[string]interface{}{"buyerId": "b", "vendorId": "v", "productId": "onion", "buyerLanguage": "zz"}, http.StatusBadRequest, "UNSUPPORTED_LANGUAGE"},
		{"bad opening", map[string]interface{}{"buyerId": "b", "vendorId": "v", "productId": "onion", "initialOffer": "0"}, http.StatusBadRequest, "INVALID_OFFER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/v1/negotiations", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestListAndCancel(t *testing.T) {
	ts := newTestServer(t)
	s := ts.start(t, "tomato")
	ts.start(t, "onion")

	rec := ts.do(t, http.MethodGet, "/v1/negotiations?party=vendor-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)

	rec = ts.do(t, http.MethodGet, "/v1/negotiations", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/negotiations/"+s.ID.String()+"/cancel", map[string]interface{}{"actor": "vendor"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, negotiation.StatusCancelled, decodeOutcome(t, rec).Session.Status)

	rec = ts.do(t, http.MethodGet, "/v1/negotiations?party=vendor-1", nil)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = ts.do(t, http.MethodPost, "/v1/negotiations/"+s.ID.String()+"/cancel", map[string]interface{}{"actor": "vendor"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegistryClosed(t *testing.T) {
	ts := newTestServer(t)
	s := ts.start(t, "tomato")
	ts.registry.Close()

	rec := ts.do(t, http.MethodPost, "/v1/negotiations/"+s.ID.String()+"/offers", map[string]interface{}{"actor": "vendor", "value": "120"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SHUTTING_DOWN", errorCode(t, rec))
}

func TestPendingDeliveries(t *testing.T) {
	ts := newTestServer(t)
	ts.start(t, "tomato")

	var pending []*notification.Delivery
	require.Eventually(t, func() bool {
		var err error
		pending, err = ts.dispatcher.Pending(context.Background(), "vendor-1")
		return err == nil && len(pending) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec := ts.do(t, http.MethodGet, "/v1/deliveries/pending?recipient=vendor-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items []*notification.Delivery `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	key := body.Items[0].Key
	assert.Equal(t, pending[0].Key, key)

	rec = ts.do(t, http.MethodPost, "/v1/deliveries/"+key+"/ack", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodPost, "/v1/deliveries/"+key+"/ack", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "second ack is a no-op")
	rec = ts.do(t, http.MethodPost, "/v1/deliveries/unknown-key/ack", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/deliveries/pending", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStream_RedeliversParked(t *testing.T) {
	ts := newTestServer(t)
	s := ts.start(t, "tomato")
	require.Eventually(t, func() bool {
		pending, err := ts.dispatcher.Pending(context.Background(), "vendor-1")
		return err == nil && len(pending) == 1
	}, 2*time.Second, 10*time.Millisecond)

	srv := httptest.NewServer(ts.handler)
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/stream?party=vendor-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	wantID := fmt.Sprintf("id: %s:1:vendor-1", s.ID)
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed early")
			if strings.HasPrefix(line, "id: ") {
				assert.Equal(t, wantID, line)
				return
			}
		case <-deadline:
			t.Fatal("no delivery on stream")
		}
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sessions_started_total")
}
