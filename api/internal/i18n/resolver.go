package i18n

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const DefaultGeoLookupURL = "https://ipapi.co/json/"

var countryToLanguage = map[string]string{
	"us": "en",
	"gb": "en",
	"au": "en",
	"id": "id",
	"es": "es",
	"mx": "es",
	"ar": "es",
}

// LanguageForCountry maps an ISO country code to a supported tag.
func LanguageForCountry(country string) string {
	if tag, ok := countryToLanguage[strings.ToLower(strings.TrimSpace(country))]; ok {
		return tag
	}
	return DefaultTag
}

// Resolver guesses the user's language from an IP geolocation lookup.
type Resolver struct {
	URL    string
	Client *retryablehttp.Client
	logger *slog.Logger
}

func NewResolver(url string, logger *slog.Logger) *Resolver {
	if strings.TrimSpace(url) == "" {
		url = DefaultGeoLookupURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 5 * time.Second
	c.Logger = logger
	return &Resolver{URL: url, Client: c, logger: logger}
}

type geoResponse struct {
	CountryCode string `json:"country_code"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

// Resolve returns the language for the caller's location, or DefaultTag on
// any failure.
func (r *Resolver) Resolve(ctx context.Context) string {
	country, err := r.country(ctx)
	if err != nil {
		r.logger.Warn("locale lookup failed", "error", err)
		return DefaultTag
	}
	tag := LanguageForCountry(country)
	r.logger.Debug("locale resolved", "country", country, "language", tag)
	return tag
}

func (r *Resolver) country(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("geolookup %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("geolookup: bad JSON: %w", err)
	}
	if out.Error {
		return "", fmt.Errorf("geolookup: %s", out.Reason)
	}
	if out.CountryCode == "" {
		return "", fmt.Errorf("geolookup: empty country_code")
	}
	return out.CountryCode, nil
}

// Bootstrap builds the start-up locale: an explicit tag wins, otherwise the
// resolver is asked, otherwise DefaultTag.
func Bootstrap(ctx context.Context, c *Catalog, explicit string, r *Resolver) Locale {
	if strings.TrimSpace(explicit) != "" {
		return NewLocale(c, explicit)
	}
	if r == nil {
		return NewLocale(c, DefaultTag)
	}
	return NewLocale(c, r.Resolve(ctx))
}
