// Package geoip resolves IP addresses to coarse locations for the login and
// session observers.
package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"bizpulse/internal/alert"
	"bizpulse/internal/config"
	"bizpulse/internal/constants"
)

var ErrNoLocation = errors.New("geoip: lookup returned no coordinates")

type Locator interface {
	Locate(ctx context.Context, ip string) (*alert.GeoLocation, error)
}

// APILocator queries a JSON endpoint such as ipapi.co or ip-api.com.
type APILocator struct {
	client  *http.Client
	url     string
	headers map[string]string
}

func NewAPILocator(cfg config.GeoIPConfig) *APILocator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	return &APILocator{
		client:  &http.Client{Timeout: timeout},
		url:     cfg.URL,
		headers: cfg.Headers,
	}
}

func (l *APILocator) Locate(ctx context.Context, ip string) (*alert.GeoLocation, error) {
	url := strings.ReplaceAll(l.url, "{ip}", ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range l.headers {
		req.Header.Set(k, v)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geoip request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return nil, fmt.Errorf("geoip api returned status: %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return fromResponse(body)
}

// fromResponse accepts both the ipapi.co and ip-api.com field names.
func fromResponse(body map[string]interface{}) (*alert.GeoLocation, error) {
	lat, okLat := firstNumber(body, "latitude", "lat")
	lon, okLon := firstNumber(body, "longitude", "lon")
	if !okLat || !okLon {
		return nil, ErrNoLocation
	}
	return &alert.GeoLocation{
		City:      firstString(body, "city"),
		Country:   firstString(body, "country_name", "country"),
		Latitude:  lat,
		Longitude: lon,
	}, nil
}

func firstNumber(body map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := body[k].(float64); ok {
			return v, true
		}
	}
	return 0, false
}

func firstString(body map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := body[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Routable reports whether ip is worth looking up. Private, loopback and
// unparseable addresses have no public location.
func Routable(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !parsed.IsPrivate() && !parsed.IsLoopback() && !parsed.IsUnspecified() && !parsed.IsLinkLocalUnicast()
}
