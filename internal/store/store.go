package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"mealrescue/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the process-wide postgres handle, opened at startup and closed
// at shutdown.
type Store struct {
	db *sqlx.DB
}

// NewStore connects to postgres and configures the connection pool
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// RunMigrations applies embedded schema migrations that have not been
// recorded in schema_migrations yet, in filename order.
func (s *Store) RunMigrations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			migration_name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		var applied bool
		err = s.db.GetContext(ctx, &applied,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE migration_name = $1)", name)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		sqlBytes, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO schema_migrations (migration_name) VALUES ($1)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
	}

	return nil
}

// availabilityPredicate gates every customer-facing offer read: units left
// and the current instant inside all three time bounds.
const availabilityPredicate = `
	o.quantity > 0
	AND NOW() >= o.available_from
	AND NOW() <= o.available_to
	AND NOW() <= o.expires_at`

const offerListingColumns = `
	o.id AS offer_id,
	o.restaurant_id,
	o.title,
	o.description,
	o.price_cents,
	o.currency,
	o.quantity,
	r.name AS restaurant_name,
	r.commission_bps`

// GetAvailableOffer retrieves one offer under the availability predicate,
// joined with its restaurant for the display projection and the current
// commission rate.
func (s *Store) GetAvailableOffer(ctx context.Context, offerID int64) (*models.OfferListing, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM offers o
		JOIN restaurants r ON r.id = o.restaurant_id
		WHERE o.id = $1 AND r.active AND %s`,
		offerListingColumns, availabilityPredicate)

	var listing models.OfferListing
	err := s.db.GetContext(ctx, &listing, query, offerID)
	if err == sql.ErrNoRows {
		return nil, models.ErrOfferUnavailable
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetActiveOffers retrieves all currently purchasable offers
func (s *Store) GetActiveOffers(ctx context.Context) ([]models.OfferListing, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM offers o
		JOIN restaurants r ON r.id = o.restaurant_id
		WHERE r.active AND %s
		ORDER BY o.available_to, o.id`,
		offerListingColumns, availabilityPredicate)

	var listings []models.OfferListing
	err := s.db.SelectContext(ctx, &listings, query)
	return listings, err
}

// GetRestaurantByID retrieves a restaurant by ID
func (s *Store) GetRestaurantByID(ctx context.Context, id int64) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	err := s.db.GetContext(ctx, &restaurant, "SELECT * FROM restaurants WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("restaurant %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &restaurant, nil
}
