package location

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolve_PrefersSuburb(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("missing format=json, query = %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"address":{"suburb":"Sector 5","city":"Pune"}}`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, srv.Client())
	area, err := p.Resolve(context.Background(), 18.52, 73.85)
	if err != nil {
		t.Fatalf("Resolve() err = %v", err)
	}
	if area.Name != "Sector 5" {
		t.Errorf("area = %q, want %q", area.Name, "Sector 5")
	}

	current, ok := p.Current()
	if !ok || current.Name != "Sector 5" {
		t.Errorf("Current() = %+v, %v", current, ok)
	}
}

func TestResolve_FallbackChain(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"city", `{"address":{"city":"Pune"}}`, "Pune"},
		{"town", `{"address":{"town":"Lonavala"}}`, "Lonavala"},
		{"village", `{"address":{"village":"Kamshet"}}`, "Kamshet"},
		{"nothing", `{"address":{}}`, "Unknown Location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewProvider(srv.URL, srv.Client())
			area, err := p.Resolve(context.Background(), 1, 2)
			if err != nil {
				t.Fatalf("Resolve() err = %v", err)
			}
			if area.Name != tt.want {
				t.Errorf("area = %q, want %q", area.Name, tt.want)
			}
		})
	}
}

func TestResolve_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, srv.Client())
	if _, err := p.Resolve(context.Background(), 1, 2); err == nil {
		t.Fatal("Resolve() = nil error on 429")
	}
	// A failed resolution must not populate the stored location.
	if _, ok := p.Current(); ok {
		t.Error("Current() populated after failed resolve")
	}
}
