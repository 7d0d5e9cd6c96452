package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

// Repository reads the product catalog from SQLite.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const productColumns = `id, name, description, category, price, discount_price, coin_price, is_flash_deal, is_best_seller`

// ListProducts returns all products, or those of one category when category is set.
func (r *Repository) ListProducts(ctx context.Context, category string) ([]*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	var products []*domain.Product
	byID := make(map[string]*domain.Product)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		products = append(products, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	if err := r.loadOptions(ctx, byID, ""); err != nil {
		return nil, err
	}
	if err := r.loadExtras(ctx, byID, ""); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct fails with domain.ErrNotFound for an unknown id.
func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	byID := map[string]*domain.Product{p.ID: p}
	if err := r.loadOptions(ctx, byID, p.ID); err != nil {
		return nil, err
	}
	if err := r.loadExtras(ctx, byID, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Category,
		&p.Price,
		&p.DiscountPrice,
		&p.CoinPrice,
		&p.IsFlashDeal,
		&p.IsBestSeller,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	return p, nil
}

// loadOptions fills Options for the given products. productID narrows the
// query to one product.
func (r *Repository) loadOptions(ctx context.Context, byID map[string]*domain.Product, productID string) error {
	if len(byID) == 0 {
		return nil
	}
	query := `SELECT product_id, name FROM product_options`
	var args []any
	if productID != "" {
		query += ` WHERE product_id = ?`
		args = append(args, productID)
	}
	query += ` ORDER BY product_id, position`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query product options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pid, name string
		if err := rows.Scan(&pid, &name); err != nil {
			return fmt.Errorf("failed to scan product option: %w", err)
		}
		if p, ok := byID[pid]; ok {
			p.Options = append(p.Options, name)
		}
	}
	return rows.Err()
}

func (r *Repository) loadExtras(ctx context.Context, byID map[string]*domain.Product, productID string) error {
	if len(byID) == 0 {
		return nil
	}
	query := `SELECT product_id, id, name, price FROM product_extras`
	var args []any
	if productID != "" {
		query += ` WHERE product_id = ?`
		args = append(args, productID)
	}
	query += ` ORDER BY product_id, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query product extras: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pid string
		var e domain.ProductExtra
		if err := rows.Scan(&pid, &e.ID, &e.Name, &e.Price); err != nil {
			return fmt.Errorf("failed to scan product extra: %w", err)
		}
		if p, ok := byID[pid]; ok {
			p.Extras = append(p.Extras, e)
		}
	}
	return rows.Err()
}

func (r *Repository) Close() error {
	return r.db.Close()
}
