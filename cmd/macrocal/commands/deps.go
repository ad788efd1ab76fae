package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/macrocal/internal/calibration"
	"github.com/wonny/macrocal/internal/external/ilostat"
	"github.com/wonny/macrocal/internal/external/wdi"
	"github.com/wonny/macrocal/internal/fiscalref"
	"github.com/wonny/macrocal/internal/store"
	"github.com/wonny/macrocal/pkg/config"
	"github.com/wonny/macrocal/pkg/database"
	"github.com/wonny/macrocal/pkg/httputil"
	"github.com/wonny/macrocal/pkg/logger"
	"github.com/wonny/macrocal/pkg/redis"
)

// deps holds the wired components shared by the commands
type deps struct {
	cfg        *config.Config
	log        *logger.Logger
	httpClient *httputil.Client
	calibrator *calibration.Calibrator
	book       *fiscalref.Book
	bookHash   string

	// optional
	db    *database.DB
	runs  *store.Repository
	redis *redis.Client
}

// buildDeps wires the calibration pipeline. The database is only opened
// when withDB is set and DATABASE_URL is configured.
func buildDeps(cfg *config.Config, log *logger.Logger, withDB bool) (*deps, error) {
	d := &deps{cfg: cfg, log: log}

	// 1. Fiscal reference book (built-in, optionally overridden by YAML)
	d.book = fiscalref.DefaultBook()
	if cfg.Calibration.ReferenceFile != "" {
		book, err := fiscalref.Load(cfg.Calibration.ReferenceFile)
		if err != nil {
			return nil, fmt.Errorf("load fiscal reference: %w", err)
		}
		d.book = book
		log.WithField("file", cfg.Calibration.ReferenceFile).Info("Loaded fiscal reference overrides")
	}
	hash, err := fiscalref.Hash(d.book)
	if err != nil {
		return nil, fmt.Errorf("hash fiscal reference: %w", err)
	}
	d.bookHash = hash

	// 2. Raw series cache (optional)
	d.redis, err = redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without series cache")
		d.redis = redis.Disabled()
	}

	// 3. Source clients
	d.httpClient = httputil.New(cfg, log)
	wdiClient := wdi.NewClient(d.httpClient, redis.NewCache(d.redis, "wdi", cfg.Redis.CacheTTL), cfg.WDI.BaseURL, log)
	iloClient := ilostat.NewClient(d.httpClient, redis.NewCache(d.redis, "ilostat", cfg.Redis.CacheTTL), cfg.ILO.BaseURL, cfg.ILO.UserAgent, log)

	// 4. Calibrator
	d.calibrator = calibration.NewDefault(wdiClient, iloClient, d.book, log)

	// 5. Run archive (optional)
	if withDB {
		db, err := database.New(cfg)
		switch {
		case errors.Is(err, database.ErrNotConfigured):
			log.Debug("DATABASE_URL not set, run archive disabled")
		case err != nil:
			d.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		default:
			d.db = db
			d.runs = store.NewRepository(db.Pool)
			if err := d.runs.EnsureSchema(context.Background()); err != nil {
				d.Close()
				return nil, err
			}
		}
	}

	return d, nil
}

// Close releases the database pool and the Redis connection
func (d *deps) Close() {
	if d.db != nil {
		d.db.Close()
	}
	if d.redis != nil {
		d.redis.Close()
	}
}

// probe reports whether both live sources answer at all
func (d *deps) probe(ctx context.Context) bool {
	return d.httpClient.Reachable(ctx, d.cfg.WDI.BaseURL) && d.httpClient.Reachable(ctx, d.cfg.ILO.BaseURL)
}
