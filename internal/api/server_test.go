package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercato/internal/adapters/config"
	"mercato/internal/domain/contract"
	"mercato/internal/domain/product"
	"mercato/internal/domain/request"
	"mercato/internal/domain/session"
	"mercato/internal/events"
	"mercato/internal/services/negotiation"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxRounds:      8,
		MaxDuration:    30 * time.Minute,
		MaxConcurrent:  4,
		StartRate:      1000,
		StartBurst:     1000,
		EventBufferLen: 256,
	}
}

func newTestServer(bus *events.Broadcaster) *Server {
	opts := negotiation.DefaultOptions()
	opts.Pacer = negotiation.NoopPacer()
	orch := negotiation.New(bus, contract.NewAssembler(), opts)
	return NewServer(config.APIConfig{Addr: ":0"}, testEngineConfig(), orch, bus)
}

func negotiatePayload() map[string]interface{} {
	return map[string]interface{}{
		"request": &request.BuyerRequest{
			ID:      uuid.New(),
			BuyerID: uuid.New(),
			Title:   "Industrial sensors",
			Quantity: request.QuantityRange{
				Min: 80, Max: 100, Unit: "pieces",
			},
			Budget: request.Budget{
				Min:      decimal.NewFromInt(6000),
				Max:      decimal.NewFromInt(10000),
				Currency: "USD",
			},
			Delivery: request.DeliveryRequirements{
				Location: "Rotterdam, NL",
			},
			PaymentPreference: "net_30",
			Urgency:           request.UrgencyMedium,
		},
		"product": &product.B2BProduct{
			ID:         uuid.New(),
			SupplierID: uuid.New(),
			Name:       "PT100 Sensor",
			Terms: product.CommercialTerms{
				Tiers: []product.PricingTier{
					{MinQuantity: 1, UnitPrice: decimal.NewFromInt(100)},
					{MinQuantity: 100, UnitPrice: decimal.NewFromInt(80)},
				},
				PaymentTerms: "net_15",
				LeadTime:     product.LeadTime{Min: 2, Max: 4, Unit: "weeks"},
				MOQ:          100,
				Currency:     "USD",
			},
			Boundaries: product.NegotiationBoundaries{
				PaymentTermsFlexible: true,
			},
		},
		"buyer_strategy":    "balanced",
		"supplier_strategy": "balanced",
	}
}

func TestHandleNegotiate(t *testing.T) {
	s := newTestServer(nil)

	t.Run("runs a full negotiation", func(t *testing.T) {
		body, err := json.Marshal(negotiatePayload())
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/negotiations", bytes.NewReader(body))
		s.handleNegotiate(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var result session.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.True(t, result.Success)
		assert.NotEmpty(t, result.Rounds)
		assert.NotNil(t, result.Contract)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/negotiations", strings.NewReader("{not json"))
		s.handleNegotiate(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects invalid domain input", func(t *testing.T) {
		payload := negotiatePayload()
		payload["request"].(*request.BuyerRequest).Quantity.Min = 0
		body, err := json.Marshal(payload)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/negotiations", bytes.NewReader(body))
		s.handleNegotiate(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("sheds load when all session slots are busy", func(t *testing.T) {
		for i := 0; i < cap(s.slots); i++ {
			s.slots <- struct{}{}
		}
		defer func() {
			for i := 0; i < cap(s.slots); i++ {
				<-s.slots
			}
		}()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/negotiations", strings.NewReader("{}"))
		s.handleNegotiate(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("refuses new sessions while draining", func(t *testing.T) {
		s.draining.Store(true)
		defer s.draining.Store(false)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/negotiations", strings.NewReader("{}"))
		s.handleNegotiate(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandleSession(t *testing.T) {
	s := newTestServer(nil)

	t.Run("rejects malformed id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/negotiations/not-a-uuid", nil)
		s.httpServer.Handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/negotiations/"+uuid.NewString(), nil)
		s.httpServer.Handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(nil)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["active_sessions"])
}

// newWSFixture stands up an isolated bus and server per case so subscriber
// counts are unambiguous
func newWSFixture(t *testing.T) (*events.Broadcaster, string) {
	t.Helper()

	bus := events.NewBroadcaster(events.DefaultBufferLen)
	t.Cleanup(bus.Close)

	s := newTestServer(bus)
	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)

	return bus, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestHandleWebSocket(t *testing.T) {
	t.Run("streams events as json frames", func(t *testing.T) {
		bus, wsURL := newWSFixture(t)

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Let the handler subscribe before publishing
		require.Eventually(t, func() bool { return bus.SubscriberCount() > 0 },
			2*time.Second, 10*time.Millisecond, "websocket handler never subscribed")

		sessionID := uuid.New()
		bus.Publish(events.New(sessionID, events.TypeOfferMade, "hello"))

		var e events.Event
		require.NoError(t, conn.ReadJSON(&e))
		assert.Equal(t, events.TypeOfferMade, e.Type)
		assert.Equal(t, sessionID, e.SessionID)
	})

	t.Run("filters by session id", func(t *testing.T) {
		bus, wsURL := newWSFixture(t)

		want := uuid.New()
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?session_id="+want.String(), nil)
		require.NoError(t, err)
		defer conn.Close()

		require.Eventually(t, func() bool { return bus.SubscriberCount() > 0 },
			2*time.Second, 10*time.Millisecond)

		bus.Publish(events.New(uuid.New(), events.TypeOfferMade, "other session"))
		bus.Publish(events.New(want, events.TypeOfferAccepted, "mine"))

		var e events.Event
		require.NoError(t, conn.ReadJSON(&e))
		assert.Equal(t, want, e.SessionID)
		assert.Equal(t, events.TypeOfferAccepted, e.Type)
	})

	t.Run("rejects a malformed session id", func(t *testing.T) {
		_, wsURL := newWSFixture(t)

		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?session_id=not-a-uuid", nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
