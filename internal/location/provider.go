// Package location resolves device coordinates to a human-readable area
// name via a Nominatim-style reverse-geocoding service. Resolution is a
// best-effort enrichment: ticket creation proceeds with a fallback area
// when it fails, it never blocks a submission.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

// FallbackAddress annotates tickets whose area could not be resolved.
const FallbackAddress = "Unknown location"

// Area is a resolved location.
type Area struct {
	Name string  `json:"area"`
	Lat  float64 `json:"latitude"`
	Lng  float64 `json:"longitude"`
}

// Provider calls the reverse-geocoding service and caches the last
// successful resolution for the session.
type Provider struct {
	baseURL string
	client  *http.Client

	mu   sync.RWMutex
	last *Area
}

// NewProvider creates a provider against the given reverse-geocoding
// endpoint (e.g. https://nominatim.openstreetmap.org/reverse).
func NewProvider(baseURL string, client *http.Client) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{baseURL: baseURL, client: client}
}

// geocodeResponse is the subset of the reverse-geocode payload we read.
type geocodeResponse struct {
	Address struct {
		Suburb  string `json:"suburb"`
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
	} `json:"address"`
}

// Resolve looks up the area name for the given coordinates. On success
// the result is stored as the provider's current location. Errors are
// descriptive and leave the stored location untouched.
func (p *Provider) Resolve(ctx context.Context, lat, lng float64) (Area, error) {
	u := fmt.Sprintf("%s?lat=%s&lon=%s&format=json",
		p.baseURL,
		url.QueryEscape(fmt.Sprintf("%g", lat)),
		url.QueryEscape(fmt.Sprintf("%g", lng)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Area{}, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Area{}, fmt.Errorf("fetch area name: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Area{}, fmt.Errorf("geocode service returned %d", resp.StatusCode)
	}

	var payload geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Area{}, fmt.Errorf("decode geocode response: %w", err)
	}

	name := firstNonEmpty(
		payload.Address.Suburb,
		payload.Address.City,
		payload.Address.Town,
		payload.Address.Village,
	)
	if name == "" {
		name = "Unknown Location"
	}

	area := Area{Name: name, Lat: lat, Lng: lng}
	p.mu.Lock()
	p.last = &area
	p.mu.Unlock()
	return area, nil
}

// Current returns the last resolved area, if any.
func (p *Provider) Current() (Area, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Area{}, false
	}
	return *p.last, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
