package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

func TestOffChain_StartAll_EmitsIntentsFromFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]feedEntry{{QuoteID: "q1", Payload: json.RawMessage(`{"a":1}`)}})
	}))
	defer srv.Close()

	o := NewOffChain(srv.URL, "rfq", 50*time.Millisecond, nil)
	sink := make(chan types.Intent, 4)

	if err := o.StartAll(context.Background(), sink); err != nil {
		t.Fatalf("start all: %v", err)
	}
	defer o.StopAll(context.Background())

	select {
	case intent := <-sink:
		if intent.ID != "q1" || intent.Source != types.IntentSourceOffChain || intent.Standard != "rfq" {
			t.Errorf("got %+v", intent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an intent from the feed")
	}
}

func TestOffChain_StartAll_ErrorsWhenAlreadyRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]feedEntry{})
	}))
	defer srv.Close()

	o := NewOffChain(srv.URL, "rfq", time.Minute, nil)
	sink := make(chan types.Intent, 1)
	if err := o.StartAll(context.Background(), sink); err != nil {
		t.Fatalf("start all: %v", err)
	}
	defer o.StopAll(context.Background())

	if err := o.StartAll(context.Background(), sink); err == nil {
		t.Error("expected an error starting an already-running feed watcher")
	}
}

func TestOffChain_StopAll_IsNoOpWhenNotRunning(t *testing.T) {
	o := NewOffChain("http://example.invalid", "rfq", time.Minute, nil)
	if err := o.StopAll(context.Background()); err != nil {
		t.Errorf("expected StopAll on a never-started watcher to be a no-op, got %v", err)
	}
}

func TestOffChain_PollLoop_SkipsOnFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewOffChain(srv.URL, "rfq", 50*time.Millisecond, nil)
	sink := make(chan types.Intent, 1)
	if err := o.StartAll(context.Background(), sink); err != nil {
		t.Fatalf("start all: %v", err)
	}
	defer o.StopAll(context.Background())

	select {
	case intent := <-sink:
		t.Fatalf("expected no intent to be emitted on fetch error, got %+v", intent)
	case <-time.After(300 * time.Millisecond):
	}
}
