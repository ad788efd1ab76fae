package wdi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/macrocal/pkg/httputil"
	"github.com/wonny/macrocal/pkg/logger"
	"github.com/wonny/macrocal/pkg/redis"
)

// IndicatorGDPPerCapita is GDP per capita (constant 2015 US$)
const IndicatorGDPPerCapita = "NY.GDP.PCAP.KD"

// perPage is large enough that one request covers any annual window
const perPage = 20000

var (
	// ErrAPI is returned when the API answers with a message instead of data
	ErrAPI = errors.New("world bank api error")

	// ErrMalformedResponse is returned when the payload does not have the expected layout
	ErrMalformedResponse = errors.New("malformed world bank response")
)

// Client handles communication with the World Bank Indicators API (v2)
// ⭐ SSOT: World Bank WDI 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	cache      *redis.Cache
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new WDI client; cache may be nil
func NewClient(httpClient *httputil.Client, cache *redis.Cache, baseURL string, log *logger.Logger) *Client {
	if cache == nil {
		cache = redis.NewCache(nil, "wdi", 0)
	}
	return &Client{
		httpClient: httpClient,
		cache:      cache,
		logger:     log.WithField("module", "wdi"),
		baseURL:    baseURL,
	}
}

// Observation is one indicator value for one country-year
type Observation struct {
	Indicator string   `json:"indicator"`
	Country   string   `json:"country"`
	Year      int      `json:"year"`
	Value     *float64 `json:"value"` // nil when the source has no value
}

// FetchIndicators downloads each indicator code for country over the years
// covered by start..end and joins them into one Frame keyed by code.
// Indicators the API returns no rows for are left out of the Frame.
func (c *Client) FetchIndicators(ctx context.Context, country string, start, end time.Time, codes ...string) (*Frame, error) {
	series := make(map[string][]Observation, len(codes))

	for _, code := range codes {
		obs, err := c.fetchIndicator(ctx, country, code, start.Year(), end.Year())
		if err != nil {
			return nil, fmt.Errorf("fetch %s for %s: %w", code, country, err)
		}
		if len(obs) == 0 {
			c.logger.WithFields(map[string]interface{}{
				"indicator": code,
				"country":   country,
			}).Warn("Indicator returned no data")
			continue
		}
		series[code] = obs
	}

	return newFrame(series), nil
}

// fetchIndicator issues one request (or serves it from cache)
func (c *Client) fetchIndicator(ctx context.Context, country, code string, fromYear, toYear int) ([]Observation, error) {
	key := redis.SeriesKey("wdi", country, code, fromYear, toYear)

	var cached []Observation
	if found, err := c.cache.Get(ctx, key, &cached); err == nil && found {
		c.logger.WithField("key", key).Debug("Served indicator from cache")
		return cached, nil
	}

	req := httputil.NewRequest(c.baseURL, fmt.Sprintf("/country/%s/indicator/%s", country, code)).
		Param("format", "json").
		Param("date", fmt.Sprintf("%d:%d", fromYear, toYear)).
		Param("per_page", strconv.Itoa(perPage))

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	obs, err := parseResponse(body)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, obs); err != nil {
		c.logger.WithError(err).Warn("Failed to cache indicator")
	}

	c.logger.WithFields(map[string]interface{}{
		"indicator": code,
		"country":   country,
		"count":     len(obs),
	}).Debug("Fetched indicator")

	return obs, nil
}

// pageInfo is the first element of every v2 response
type pageInfo struct {
	Page    json.RawMessage `json:"page"`
	Pages   int             `json:"pages"`
	Total   int             `json:"total"`
	Message []struct {
		ID    string `json:"id"`
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"message"`
}

type record struct {
	Indicator struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"indicator"`
	CountryISO3 string   `json:"countryiso3code"`
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
}

// parseResponse decodes `[ {page info}, [records...] ]`
func parseResponse(body []byte) ([]Observation, error) {
	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(envelope) == 0 {
		return nil, fmt.Errorf("%w: empty envelope", ErrMalformedResponse)
	}

	var info pageInfo
	if err := json.Unmarshal(envelope[0], &info); err != nil {
		return nil, fmt.Errorf("%w: page info: %v", ErrMalformedResponse, err)
	}
	if len(info.Message) > 0 {
		msgs := make([]string, 0, len(info.Message))
		for _, m := range info.Message {
			msgs = append(msgs, fmt.Sprintf("%s %s: %s", m.ID, m.Key, m.Value))
		}
		return nil, fmt.Errorf("%w: %s", ErrAPI, strings.Join(msgs, "; "))
	}

	if len(envelope) < 2 || string(envelope[1]) == "null" {
		return nil, nil
	}

	var records []record
	if err := json.Unmarshal(envelope[1], &records); err != nil {
		return nil, fmt.Errorf("%w: records: %v", ErrMalformedResponse, err)
	}

	obs := make([]Observation, 0, len(records))
	for _, r := range records {
		year, err := strconv.Atoi(r.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: non-annual date %q", ErrMalformedResponse, r.Date)
		}
		obs = append(obs, Observation{
			Indicator: r.Indicator.ID,
			Country:   r.CountryISO3,
			Year:      year,
			Value:     r.Value,
		})
	}

	return obs, nil
}
