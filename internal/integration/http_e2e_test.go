//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"

	"crowdcount/internal/adapters/geocode"
	server "crowdcount/internal/adapters/http_server"
	"crowdcount/internal/adapters/llm"
	redisad "crowdcount/internal/adapters/redis"
	"crowdcount/internal/app"
	"crowdcount/internal/domain"
	"crowdcount/internal/estimation"
)

// ---------- helpers ----------

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{Repository: "redis", Tag: "7-alpine"}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run redis: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	rc := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("127.0.0.1:%s", resource.GetPort("6379/tcp"))})
	if err := pool.Retry(func() error { return rc.Ping(context.Background()).Err() }); err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

// fakeGoogle answers like the Geocoding JSON API and counts lookups.
func fakeGoogle(t *testing.T, hits *int32) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if !strings.Contains(strings.ToLower(r.URL.Query().Get("address")), "shibuya") {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "ZERO_RESULTS", "results": []any{}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "OK",
			"results": []any{map[string]any{
				"geometry": map[string]any{"location": map[string]any{"lat": 35.658, "lng": 139.7016}},
			}},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

// fakeOpenAI returns a fixed chat completion.
func fakeOpenAI(t *testing.T, content string) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "cmpl-e2e", "object": "chat.completion", "model": "e2e",
			"choices": []any{map[string]any{"index": 0, "finish_reason": "stop",
				"message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

// ---------- the tests ----------

func TestHTTP_EndToEnd_GeocodeCachedInRedis(t *testing.T) {
	rc := startRedis(t)
	var hits int32
	google := fakeGoogle(t, &hits)

	client, err := geocode.New(google.URL, "e2e-key", 50)
	if err != nil {
		t.Fatal(err)
	}
	geo := app.NewGeocodeService(client, redisad.NewWithClient(rc), time.Minute)
	srv := server.New(server.Options{RequestTimeout: 10 * time.Second})
	srv.MountHandlers(&server.Handlers{
		Estimates: app.NewEstimateService(nil, estimation.DefaultTuning(), time.Second),
		Geocodes:  geo,
	})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/api/geocode?address=Shibuya+Station")
		if err != nil {
			t.Fatal(err)
		}
		var c domain.Coords
		_ = json.NewDecoder(resp.Body).Decode(&c)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || c.Lat != 35.658 {
			t.Fatalf("attempt %d: status %d coords %+v", i, resp.StatusCode, c)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("upstream hits = %d, want 1 (cache)", n)
	}
	ttl, err := rc.TTL(context.Background(), "crowd:geocode:shibuya station").Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("redis ttl = %v, %v", ttl, err)
	}

	resp, err := http.Get(ts.URL + "/api/geocode?address=Atlantis")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHTTP_EndToEnd_EstimateThroughOpenAI(t *testing.T) {
	upstream := fakeOpenAI(t, "Here you go:\n```json\n{\"count\": 50000000, \"confidence\": 0.95, \"assumptions\": [\"festival\"], \"notes\": []}\n```")
	gw := llm.NewOpenAI("e2e-key", upstream.URL+"/v1", "e2e", 400, 0.2)

	srv := server.New(server.Options{RequestTimeout: 10 * time.Second})
	srv.MountHandlers(&server.Handlers{Estimates: app.NewEstimateService(gw, estimation.DefaultTuning(), 5*time.Second)})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	body := `{"address":"世田谷区の住宅街","crowd":"普通","feature":"住民","radius_m":200}`
	resp, err := http.Post(ts.URL+"/api/estimate", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res domain.EstimateResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Count >= 50000000 || res.Range.Min > res.Count || res.Range.Max < res.Count {
		t.Fatalf("not clamped: %+v", res)
	}
	found := false
	for _, n := range res.Notes {
		if strings.Contains(n, "補正") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a Japanese correction note, got %v", res.Notes)
	}
}
