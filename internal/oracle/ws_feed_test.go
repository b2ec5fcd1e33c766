package oracle

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const testFeed = "SOL/USD"

func testPublisher(t *testing.T) (domain.Identity, ed25519.PrivateKey) {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 42
	key := ed25519.NewKeyFromSeed(seed)
	id, err := domain.IdentityFromBytes(key.Public().(ed25519.PublicKey))
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	return id, key
}

func notification(reading protocol.OraclePrice, signature string) wsNotification {
	return wsNotification{
		JSONRPC: "2.0",
		Method:  "priceNotification",
		Params: &wsNotificationParams{
			Subscription: 7,
			Result: wsPriceUpdate{
				FeedID:      reading.FeedID,
				Price:       reading.Price,
				Expo:        reading.Expo,
				Conf:        reading.Confidence,
				PublishTime: reading.PublishTime,
				Signature:   signature,
			},
		},
	}
}

// newPublisherServer confirms the subscription on every connection, then runs
// script with the connection index.
func newPublisherServer(t *testing.T, confirm bool, script func(conn *websocket.Conn, n int32)) string {
	t.Helper()
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()
		n := connections.Add(1)

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "priceSubscribe" {
			t.Errorf("expected priceSubscribe, got %s", req.Method)
		}

		if confirm {
			if err := c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: 7}); err != nil {
				return
			}
			if script != nil {
				script(c, n)
			}
		}

		// Keep connection open
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func TestWSFeed_VerifiedReadings(t *testing.T) {
	publisher, key := testPublisher(t)
	otherKey := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))

	good := protocol.OraclePrice{FeedID: testFeed, Price: 14_250, Expo: -2, Confidence: 15, PublishTime: 1_700_000_010}
	forged := good
	forged.Price = 99_999
	forged.PublishTime = 1_700_000_020
	older := good
	older.Price = 100
	older.PublishTime = 1_700_000_000
	unknown := protocol.OraclePrice{FeedID: "BTC/USD", Price: 1, PublishTime: 1_700_000_030}

	url := newPublisherServer(t, true, func(c *websocket.Conn, _ int32) {
		c.WriteJSON(notification(good, SignReading(key, good)))
		c.WriteJSON(notification(forged, SignReading(otherKey, forged)))
		c.WriteJSON(notification(older, SignReading(key, older)))
		c.WriteJSON(notification(unknown, SignReading(key, unknown)))
	})

	ctx := context.Background()
	feed, err := NewWSFeed(ctx, url, publisher, []string{testFeed}, nil, nil)
	if err != nil {
		t.Fatalf("NewWSFeed: %v", err)
	}
	defer feed.Close()

	waitFor(t, func() bool {
		_, err := feed.LatestPrice(ctx, testFeed)
		return err == nil
	})
	// Give the later messages time to arrive; none of them may replace the first.
	time.Sleep(100 * time.Millisecond)

	reading, err := feed.LatestPrice(ctx, testFeed)
	if err != nil {
		t.Fatalf("LatestPrice: %v", err)
	}
	if reading != good {
		t.Errorf("expected %+v, got %+v", good, reading)
	}

	if _, err := feed.LatestPrice(ctx, "BTC/USD"); !errors.Is(err, ErrNoPrice) {
		t.Errorf("expected ErrNoPrice for unwatched feed, got %v", err)
	}
}

func TestWSFeed_SubscribeTimeout(t *testing.T) {
	publisher, _ := testPublisher(t)
	url := newPublisherServer(t, false, nil)

	config := DefaultWSFeedConfig()
	config.SubscribeTimeout = 100 * time.Millisecond

	_, err := NewWSFeed(context.Background(), url, publisher, []string{testFeed}, &config, nil)
	if err == nil {
		t.Fatal("expected subscription timeout")
	}
}

func TestWSFeed_ReconnectResubscribes(t *testing.T) {
	publisher, key := testPublisher(t)
	first := protocol.OraclePrice{FeedID: testFeed, Price: 100, PublishTime: 1_700_000_000}
	second := protocol.OraclePrice{FeedID: testFeed, Price: 200, PublishTime: 1_700_000_060}

	url := newPublisherServer(t, true, func(c *websocket.Conn, n int32) {
		if n == 1 {
			c.WriteJSON(notification(first, SignReading(key, first)))
			time.Sleep(50 * time.Millisecond)
			c.Close()
			return
		}
		c.WriteJSON(notification(second, SignReading(key, second)))
	})

	config := DefaultWSFeedConfig()
	config.ReconnectDelay = 10 * time.Millisecond
	config.MaxReconnectDelay = 50 * time.Millisecond

	ctx := context.Background()
	feed, err := NewWSFeed(ctx, url, publisher, []string{testFeed}, &config, nil)
	if err != nil {
		t.Fatalf("NewWSFeed: %v", err)
	}
	defer feed.Close()

	waitFor(t, func() bool {
		reading, err := feed.LatestPrice(ctx, testFeed)
		return err == nil && reading.Price == second.Price
	})
}

func TestWSFeed_Close(t *testing.T) {
	publisher, _ := testPublisher(t)
	url := newPublisherServer(t, true, nil)

	ctx := context.Background()
	feed, err := NewWSFeed(ctx, url, publisher, []string{testFeed}, nil, nil)
	if err != nil {
		t.Fatalf("NewWSFeed: %v", err)
	}

	if _, err := feed.LatestPrice(ctx, testFeed); !errors.Is(err, ErrNoPrice) {
		t.Errorf("expected ErrNoPrice before any update, got %v", err)
	}

	if err := feed.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	// Double close should be safe
	if err := feed.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}

	if _, err := feed.LatestPrice(ctx, testFeed); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestVerifyReading(t *testing.T) {
	publisher, key := testPublisher(t)
	reading := protocol.OraclePrice{FeedID: testFeed, Price: 5, Expo: -1, Confidence: 1, PublishTime: 10}
	sig := SignReading(key, reading)

	if !VerifyReading(ed25519.PublicKey(publisher[:]), reading, sig) {
		t.Error("expected valid signature")
	}

	tampered := reading
	tampered.Expo = 0
	if VerifyReading(ed25519.PublicKey(publisher[:]), tampered, sig) {
		t.Error("expected tampered reading to fail")
	}
	if VerifyReading(ed25519.PublicKey(publisher[:]), reading, "not-base58!") {
		t.Error("expected malformed signature to fail")
	}
}
