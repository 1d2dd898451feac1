package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"stockwatch/internal/models"
)

// StockEvent describes one stock change of a product.
type StockEvent struct {
	ProductID int64
	OldQty    int
	NewQty    int
	OldStatus string
	NewStatus string
}

// StatusChanged reports whether the stock status flipped.
func (e StockEvent) StatusChanged() bool { return e.OldStatus != e.NewStatus }

// StockObserver is notified synchronously after every committed stock change.
type StockObserver interface {
	OnStockChanged(ctx context.Context, ev StockEvent)
}

// ProductStore is the catalog's data access layer.
type ProductStore struct {
	DB  *sql.DB
	Now func() time.Time

	mu        sync.RWMutex
	observers []StockObserver
}

// NewProductStore creates a ProductStore.
func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{DB: db, Now: time.Now}
}

// Subscribe registers o for stock change events.
func (s *ProductStore) Subscribe(o StockObserver) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

const productCols = "id,sku,name,price,stock_qty,stock_status,COALESCE(created_at,''),COALESCE(updated_at,'')"

func scanProduct(row interface{ Scan(...any) error }) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.StockQty, &p.StockStatus, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts p and fills in its ID. Status is derived from StockQty.
func (s *ProductStore) Create(ctx context.Context, p *models.Product) error {
	if p.Price == "" {
		p.Price = "0"
	}
	p.StockStatus = statusFor(p.StockQty)
	now := FormatTime(s.Now())
	res, err := s.DB.ExecContext(ctx, "INSERT INTO products (sku,name,price,stock_qty,stock_status,created_at,updated_at) VALUES (?,?,?,?,?,?,?)",
		p.SKU, p.Name, p.Price, p.StockQty, p.StockStatus, now, now)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

// Update changes the descriptive fields of a product. Stock is only changed
// through Restock and SetStock.
func (s *ProductStore) Update(ctx context.Context, p *models.Product) error {
	res, err := s.DB.ExecContext(ctx, "UPDATE products SET sku=?,name=?,price=?,updated_at=? WHERE id=?",
		p.SKU, p.Name, p.Price, FormatTime(s.Now()), p.ID)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a product together with its waitlist and supplier rows.
func (s *ProductStore) Delete(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, "DELETE FROM products WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ProductStore) Get(ctx context.Context, id int64) (*models.Product, error) {
	return scanProduct(s.DB.QueryRowContext(ctx, "SELECT "+productCols+" FROM products WHERE id=?", id))
}

func (s *ProductStore) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	return scanProduct(s.DB.QueryRowContext(ctx, "SELECT "+productCols+" FROM products WHERE sku=? COLLATE NOCASE", sku))
}

// List returns all products ordered by SKU.
func (s *ProductStore) List(ctx context.Context) ([]models.Product, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT "+productCols+" FROM products ORDER BY sku")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	return items, rows.Err()
}

// Restock adds qty to the stock count and marks the product in stock.
// A zero qty only flips the status.
func (s *ProductStore) Restock(ctx context.Context, id int64, qty int) (StockEvent, error) {
	if qty < 0 {
		return StockEvent{}, fmt.Errorf("restock quantity must not be negative")
	}
	return s.apply(ctx, id, func(old int) (int, string) {
		return old + qty, models.StockInStock
	})
}

// SetStock sets an absolute stock count; the status follows the count.
func (s *ProductStore) SetStock(ctx context.Context, id int64, qty int) (StockEvent, error) {
	if qty < 0 {
		return StockEvent{}, fmt.Errorf("stock quantity must not be negative")
	}
	return s.apply(ctx, id, func(int) (int, string) {
		return qty, statusFor(qty)
	})
}

// AdjustStock adds delta (which may be negative, e.g. a sale) and clamps at zero.
func (s *ProductStore) AdjustStock(ctx context.Context, id int64, delta int) (StockEvent, error) {
	return s.apply(ctx, id, func(old int) (int, string) {
		n := old + delta
		if n < 0 {
			n = 0
		}
		return n, statusFor(n)
	})
}

func (s *ProductStore) apply(ctx context.Context, id int64, next func(old int) (int, string)) (StockEvent, error) {
	ev := StockEvent{ProductID: id}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return ev, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, "SELECT stock_qty, stock_status FROM products WHERE id=?", id).Scan(&ev.OldQty, &ev.OldStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return ev, ErrNotFound
	}
	if err != nil {
		return ev, err
	}
	ev.NewQty, ev.NewStatus = next(ev.OldQty)

	if _, err = tx.ExecContext(ctx, "UPDATE products SET stock_qty=?, stock_status=?, updated_at=? WHERE id=?",
		ev.NewQty, ev.NewStatus, FormatTime(s.Now()), id); err != nil {
		return ev, fmt.Errorf("update stock: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return ev, err
	}

	s.mu.RLock()
	obs := append([]StockObserver(nil), s.observers...)
	s.mu.RUnlock()
	for _, o := range obs {
		o.OnStockChanged(ctx, ev)
	}
	return ev, nil
}

func statusFor(qty int) string {
	if qty > 0 {
		return models.StockInStock
	}
	return models.StockOutOfStock
}
