package ilostat

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/wonny/macrocal/pkg/httputil"
	"github.com/wonny/macrocal/pkg/logger"
	"github.com/wonny/macrocal/pkg/redis"
)

// IndicatorCapitalShare is the capital share of GDP (SDG 10.4.1 complement), percent
const IndicatorCapitalShare = "SDG_1041_NOC_RT_A"

var (
	// ErrMissingColumn is returned when the CSV header lacks a required column
	ErrMissingColumn = errors.New("ilostat csv missing column")

	// ErrMalformedResponse is returned when the payload cannot be parsed as CSV
	ErrMalformedResponse = errors.New("malformed ilostat response")
)

// Query identifies one indicator download
type Query struct {
	ID       string
	RefArea  string // ISO3 country code
	TimeFrom int
	TimeTo   int
}

// Observation is one (time, obs_value) row; Value is NaN when empty
type Observation struct {
	Time  string  `json:"time"`
	Value float64 `json:"-"`
	Raw   string  `json:"obs_value"`
}

// Client handles communication with the ILOSTAT data API
// ⭐ SSOT: ILOSTAT API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	cache      *redis.Cache
	logger     *logger.Logger
	baseURL    string
	userAgent  string
}

// NewClient creates a new ILOSTAT client; cache may be nil.
// userAgent must look like a browser or the service rejects the request.
func NewClient(httpClient *httputil.Client, cache *redis.Cache, baseURL, userAgent string, log *logger.Logger) *Client {
	if cache == nil {
		cache = redis.NewCache(nil, "ilostat", 0)
	}
	return &Client{
		httpClient: httpClient,
		cache:      cache,
		logger:     log.WithField("module", "ilostat"),
		baseURL:    baseURL,
		userAgent:  userAgent,
	}
}

// Request returns the structured request for q
func (c *Client) Request(q Query) *httputil.Request {
	return httputil.NewRequest(c.baseURL, "/data/indicator/").
		Param("id", q.ID).
		Param("ref_area", q.RefArea).
		Param("timefrom", strconv.Itoa(q.TimeFrom)).
		Param("timeto", strconv.Itoa(q.TimeTo)).
		Param("type", "both").
		Param("format", ".csv").
		SetHeader("User-Agent", c.userAgent)
}

// FetchIndicator downloads q and returns its (time, obs_value) rows
func (c *Client) FetchIndicator(ctx context.Context, q Query) ([]Observation, error) {
	key := redis.SeriesKey("ilostat", q.RefArea, q.ID, q.TimeFrom, q.TimeTo)

	var cached []Observation
	if found, err := c.cache.Get(ctx, key, &cached); err == nil && found {
		c.logger.WithField("key", key).Debug("Served indicator from cache")
		return withValues(cached)
	}

	resp, err := c.httpClient.Do(ctx, c.Request(q))
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

	obs, err := ParseCSV(body)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, obs); err != nil {
		c.logger.WithError(err).Warn("Failed to cache indicator")
	}

	c.logger.WithFields(map[string]interface{}{
		"indicator": q.ID,
		"ref_area":  q.RefArea,
		"count":     len(obs),
	}).Debug("Fetched indicator")

	return obs, nil
}

// ParseCSV extracts the time and obs_value columns; other columns are ignored
func ParseCSV(body []byte) ([]Observation, error) {
	body = bytes.TrimPrefix(body, []byte("\ufeff"))

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	timeIdx, valueIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "time":
			timeIdx = i
		case "obs_value":
			valueIdx = i
		}
	}
	if timeIdx < 0 {
		return nil, fmt.Errorf("%w: time", ErrMissingColumn)
	}
	if valueIdx < 0 {
		return nil, fmt.Errorf("%w: obs_value", ErrMissingColumn)
	}

	var obs []Observation
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedResponse, line, err)
		}
		if timeIdx >= len(row) || valueIdx >= len(row) {
			return nil, fmt.Errorf("%w: line %d: short row", ErrMalformedResponse, line)
		}

		obs = append(obs, Observation{
			Time: strings.TrimSpace(row[timeIdx]),
			Raw:  strings.TrimSpace(row[valueIdx]),
		})
	}

	return withValues(obs)
}

// withValues parses Raw into Value
func withValues(obs []Observation) ([]Observation, error) {
	for i := range obs {
		if obs[i].Raw == "" {
			obs[i].Value = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(obs[i].Raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: obs_value %q at time %s", ErrMalformedResponse, obs[i].Raw, obs[i].Time)
		}
		obs[i].Value = v
	}
	return obs, nil
}
