package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aura-agents/internal/domain"
)

func TestEnrich(t *testing.T) {
	var got enrichRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/enrich" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"summary":"UserService depends on UserRepo","nodes":[{"id":"1","kind":"type","name":"UserService"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithAPIKey("secret"))
	res, err := c.Enrich(context.Background(), "where are users stored", "/ws")
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got.Query != "where are users stored" || got.Workspace != "/ws" {
		t.Errorf("request = %+v", got)
	}
	if res.Summary != "UserService depends on UserRepo" || len(res.Nodes) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestEnrichSynthesisesSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"nodes":[
				{"id":"a","kind":"type","name":"Cache","path":"cache.go"},
				{"id":"b","kind":"func","name":"Evict"}
			],
			"edges":[{"from":"a","to":"b","kind":"calls"},{"from":"a","to":"zzz","kind":"calls"}]
		}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).Enrich(context.Background(), "cache", "")
	if err != nil {
		t.Fatal(err)
	}
	want := "- type Cache (cache.go): calls Evict\n- func Evict"
	if res.Summary != want {
		t.Errorf("Summary = %q, want %q", res.Summary, want)
	}
}

func TestEnrichErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusBadGateway, "", domain.ErrProviderUnavailable},
		{"throttled", http.StatusTooManyRequests, "", domain.ErrProviderUnavailable},
		{"not found", http.StatusNotFound, "", domain.ErrNotFound},
		{"bad request", http.StatusBadRequest, "missing query", domain.ErrExecutionFailed},
		{"invalid json", http.StatusOK, "{", domain.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Enrich(context.Background(), "q", "")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if tt.body != "" && tt.status != http.StatusOK && !strings.Contains(err.Error(), tt.body) {
				t.Errorf("error %q lacks body", err)
			}
		})
	}
}

func TestEnrichTransportErrors(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewClient(url).Enrich(context.Background(), "q", "")
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("client timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
		_, err := c.Enrich(context.Background(), "q", "")
		if !errors.Is(err, domain.ErrTimeout) {
			t.Errorf("err = %v, want timeout", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewClient(srv.URL).Enrich(ctx, "q", "")
		if !errors.Is(err, domain.ErrCancelled) {
			t.Errorf("err = %v, want cancelled", err)
		}
	})
}

func TestIsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	if !NewClient(srv.URL).IsHealthy(context.Background()) {
		t.Error("expected healthy")
	}
	srv.Close()
	if NewClient(srv.URL).IsHealthy(context.Background()) {
		t.Error("expected unhealthy after close")
	}
}

func TestSummarizeCap(t *testing.T) {
	nodes := make([]domain.GraphNode, maxSummaryNodes+3)
	for i := range nodes {
		nodes[i] = domain.GraphNode{ID: string(rune('a' + i%26)), Kind: "file", Name: "f"}
	}
	s := summarize(nodes, nil)
	if !strings.HasSuffix(s, "... 3 more") {
		t.Errorf("summary tail = %q", s[len(s)-20:])
	}
}
