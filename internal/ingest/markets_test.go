package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

func eventJSON(slug string, markets ...string) string {
	body := ""
	for i, m := range markets {
		if i > 0 {
			body += ","
		}
		body += m
	}
	return fmt.Sprintf(`{"slug":%q,"markets":[%s]}`, slug, body)
}

func marketJSON(cond, question, prices, tokens string) string {
	return fmt.Sprintf(`{"id":"id-%s","conditionId":%q,"question":%q,"slug":"s-%s",`+
		`"outcomes":"[\"Yes\",\"No\"]","outcomePrices":%q,"clobTokenIds":%q}`,
		cond, cond, question, cond, prices, tokens)
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestCatalog_FetchMarketsPaginates(t *testing.T) {
	var mu sync.Mutex
	var agents []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()

		if r.URL.Query().Get("closed") != "false" || r.URL.Query().Get("limit") != "2" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		switch offset {
		case 0:
			fmt.Fprintf(w, "[%s,%s]",
				eventJSON("ev-a", marketJSON("c1", "Will A win?", `["0.4","0.6"]`, `["t1","t2"]`)),
				eventJSON("ev-b", marketJSON("c2", "Will B win?", `["0.3","0.7"]`, `["t3","t4"]`)))
		case 2:
			fmt.Fprintf(w, "[%s]",
				eventJSON("ev-c",
					marketJSON("c3", "Will C win?", `["0.5","0.5"]`, `["t5","t6"]`),
					`{"conditionId":"bad","outcomes":"not json"}`))
		default:
			fmt.Fprint(w, "[]")
		}
	}))
	defer server.Close()

	c := NewCatalog(CatalogConfig{URL: server.URL, PageSize: 2, Concurrency: 1, MaxPages: 10, MaxRetries: 1}, nil, nil, nil)
	markets, err := c.FetchMarkets(context.Background())
	if err != nil {
		t.Fatalf("FetchMarkets: %v", err)
	}

	if len(markets) != 3 {
		t.Fatalf("expected 3 markets, got %d", len(markets))
	}
	if markets[0].ConditionID != "c1" || markets[2].EventSlug != "ev-c" {
		t.Errorf("unexpected order or slugs: %+v", markets)
	}
	if markets[1].Prices[1] != 0.7 || markets[1].AssetIDs[0] != "t3" {
		t.Errorf("unexpected decoded fields: %+v", markets[1])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(agents) != 3 {
		t.Errorf("expected 3 requests (stop at first empty page), got %d", len(agents))
	}
	if len(agents) >= 2 && agents[0] == agents[1] {
		t.Error("User-Agent should rotate per request")
	}
}

func TestCatalog_RetriesPage(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		mu.Lock()
		calls[offset]++
		n := calls[offset]
		mu.Unlock()

		if offset == "0" && n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if offset == "0" {
			fmt.Fprintf(w, "[%s]", eventJSON("ev", marketJSON("c1", "Q?", `["0.4","0.6"]`, `["t1","t2"]`)))
			return
		}
		fmt.Fprint(w, "[]")
	}))
	defer server.Close()

	c := NewCatalog(CatalogConfig{URL: server.URL, PageSize: 100, Concurrency: 1, MaxPages: 5, MaxRetries: 6}, nil, nil, nil)
	c.sleep = noSleep

	markets, err := c.FetchMarkets(context.Background())
	if err != nil {
		t.Fatalf("FetchMarkets: %v", err)
	}
	if len(markets) != 1 {
		t.Errorf("expected 1 market, got %d", len(markets))
	}

	mu.Lock()
	defer mu.Unlock()
	if calls["0"] != 3 {
		t.Errorf("offset 0 requested %d times, want 3", calls["0"])
	}
}

func TestCatalog_EmptyCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	}))
	defer server.Close()

	c := NewCatalog(CatalogConfig{URL: server.URL, PageSize: 100, Concurrency: 4, MaxPages: 3, MaxRetries: 1}, nil, nil, nil)
	if _, err := c.FetchMarkets(context.Background()); !errors.Is(err, ErrNoMarkets) {
		t.Errorf("expected ErrNoMarkets, got %v", err)
	}
}

func TestFilter(t *testing.T) {
	markets := []Market{
		{ConditionID: "keep", Question: "Will the bill pass?", Prices: []float64{0.4, 0.6}},
		{ConditionID: "three", Question: "Who wins?", Prices: []float64{0.2, 0.3, 0.5}},
		{ConditionID: "priced", Question: "Sure thing?", Prices: []float64{0.95, 0.05}},
		{ConditionID: "crypto", Question: "Bitcoin Up or Down today?", Prices: []float64{0.5, 0.5}},
		{ConditionID: "sports", Question: "Lakers vs. Celtics", Prices: []float64{0.5, 0.5}},
	}

	kept := Filter(markets, 0.95, []string{"Up or Down", "Bitcoin", "vs."})
	if len(kept) != 1 || kept[0].ConditionID != "keep" {
		t.Errorf("Filter kept %+v, want only 'keep'", kept)
	}
}

func TestBuildInstrumentsAndAssetIDs(t *testing.T) {
	markets := []Market{
		{ConditionID: "c1", Question: "Q1", EventSlug: "e1", Outcomes: []string{"Yes", "No"}, AssetIDs: []string{"t1", "t2"}},
		{ID: "g2", Question: "Q2", Outcomes: []string{"Yes", "No"}, AssetIDs: []string{"t3", "t1"}},
	}

	recs := BuildInstruments(markets)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if r := recs["t2"]; r.MarketID != "c1" || r.Outcome() != "No" || r.EventSlug != "e1" {
		t.Errorf("unexpected record for t2: %+v", r)
	}
	if r := recs["t3"]; r.MarketID != "g2" || r.Outcome() != "Yes" {
		t.Errorf("market id should fall back to gamma id: %+v", r)
	}

	ids := AssetIDs(markets)
	want := []string{"t1", "t2", "t3"}
	if len(ids) != len(want) {
		t.Fatalf("AssetIDs = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("AssetIDs = %v, want %v", ids, want)
		}
	}
}
