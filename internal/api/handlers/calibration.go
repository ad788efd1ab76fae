package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/macrocal/internal/calibration"
	"github.com/wonny/macrocal/internal/fiscalref"
	"github.com/wonny/macrocal/internal/store"
	"github.com/wonny/macrocal/pkg/config"
	"github.com/wonny/macrocal/pkg/logger"
)

// Runner runs one calibration
type Runner interface {
	Run(ctx context.Context, req calibration.Request) *calibration.Result
}

// RunStore archives and reads calibration runs
type RunStore interface {
	SaveRun(ctx context.Context, result *calibration.Result, referenceHash string) error
	LatestRun(ctx context.Context, country string) (*store.Run, error)
	ListRuns(ctx context.Context, country string, limit int) ([]*store.Run, error)
}

// maxRunsLimit caps the runs listing
const maxRunsLimit = 100

// CalibrationHandler handles calibration API endpoints
// ⭐ SSOT: 캘리브레이션 API 핸들러는 이 구조체에서만
type CalibrationHandler struct {
	runner   Runner
	runs     RunStore // nil when no database is configured
	book     *fiscalref.Book
	bookHash string
	defaults config.CalibrationConfig
	logger   *logger.Logger
}

// NewCalibrationHandler creates a new calibration handler; runs may be nil
func NewCalibrationHandler(
	runner Runner,
	runs RunStore,
	book *fiscalref.Book,
	defaults config.CalibrationConfig,
	log *logger.Logger,
) *CalibrationHandler {
	hash, err := fiscalref.Hash(book)
	if err != nil {
		log.WithError(err).Warn("Failed to hash fiscal reference book")
	}

	return &CalibrationHandler{
		runner:   runner,
		runs:     runs,
		book:     book,
		bookHash: hash,
		defaults: defaults,
		logger:   log.WithField("module", "api.calibration"),
	}
}

// Calibrate runs the pipeline and returns the result
// GET /api/calibration?country=ETH&start=1947-01-01&end=2024-12-31&update=true&save=true
func (h *CalibrationHandler) Calibrate(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.runner.Run(r.Context(), req)

	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save {
		if h.runs == nil {
			respondError(w, http.StatusServiceUnavailable, "Run archive is not configured")
			return
		}
		if err := h.runs.SaveRun(r.Context(), result, h.bookHash); err != nil {
			h.logger.WithError(err).Error("Failed to archive calibration run")
			respondError(w, http.StatusInternalServerError, "Failed to archive calibration run")
			return
		}
	}

	respondJSON(w, http.StatusOK, result)
}

// GetLatest returns the latest archived run for a country
// GET /api/calibration/latest?country=ETH
func (h *CalibrationHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "Run archive is not configured")
		return
	}

	country := h.country(r)
	run, err := h.runs.LatestRun(r.Context(), country)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No archived run for "+country)
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve latest run")
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// ListRuns returns archived runs for a country, newest first
// GET /api/calibration/runs?country=ETH&limit=20
func (h *CalibrationHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "Run archive is not configured")
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit, expected a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	country := h.country(r)
	runs, err := h.runs.ListRuns(r.Context(), country, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"country": country,
		"count":   len(runs),
		"runs":    runs,
	})
}

// GetReference returns the fiscal reference constants in force for a country
// GET /api/reference?country=ETH
func (h *CalibrationHandler) GetReference(w http.ResponseWriter, r *http.Request) {
	country := h.country(r)
	ref, exact := h.book.Lookup(country)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"country":   country,
		"exact":     exact,
		"reference": ref,
		"hash":      h.bookHash,
	})
}

func (h *CalibrationHandler) country(r *http.Request) string {
	if c := strings.TrimSpace(r.URL.Query().Get("country")); c != "" {
		return strings.ToUpper(c)
	}
	return h.defaults.Country
}

// parseRequest fills unset query parameters from the configured defaults
func (h *CalibrationHandler) parseRequest(r *http.Request) (calibration.Request, error) {
	q := r.URL.Query()

	start, end := h.defaults.Start, h.defaults.End
	var err error
	if s := q.Get("start"); s != "" {
		if start, err = time.Parse(config.DateLayout, s); err != nil {
			return calibration.Request{}, errors.New("invalid start date, expected YYYY-MM-DD")
		}
	}
	if s := q.Get("end"); s != "" {
		if end, err = time.Parse(config.DateLayout, s); err != nil {
			return calibration.Request{}, errors.New("invalid end date, expected YYYY-MM-DD")
		}
	}

	update := true
	if s := q.Get("update"); s != "" {
		if update, err = strconv.ParseBool(s); err != nil {
			return calibration.Request{}, errors.New("invalid update flag")
		}
	}

	return calibration.NewRequest(h.country(r), start, end, update)
}
