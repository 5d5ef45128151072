package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zhixuli0406/taiyuan-api/internal/database"
	"github.com/zhixuli0406/taiyuan-api/internal/models"
)

const inventoryColumns = `id, product_id, warehouse, quantity, safe_stock, created_at, updated_at`

func scanInventory(row interface{ Scan(...any) error }) (*models.Inventory, error) {
	inv := &models.Inventory{}
	err := row.Scan(
		&inv.ID,
		&inv.ProductID,
		&inv.Warehouse,
		&inv.Quantity,
		&inv.SafeStock,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func CreateInventory(ctx context.Context, db *sql.DB, productID int64, warehouse string, quantity, safeStock int) (*models.Inventory, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check product exists: %w", err)
	}
	if !exists {
		return nil, database.ErrProductNotFound
	}

	query := fmt.Sprintf(`
		INSERT INTO inventory (product_id, warehouse, quantity, safe_stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING %s`, inventoryColumns)

	inv, err := scanInventory(db.QueryRowContext(ctx, query, productID, warehouse, quantity, safeStock))
	if err != nil {
		return nil, fmt.Errorf("create inventory: %w", err)
	}

	return inv, nil
}

func GetInventoryByProduct(ctx context.Context, db *sql.DB, productID int64) ([]models.Inventory, error) {
	query := fmt.Sprintf(`SELECT %s FROM inventory WHERE product_id = $1 ORDER BY warehouse`, inventoryColumns)

	rows, err := db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	defer rows.Close()

	var records []models.Inventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		records = append(records, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	if len(records) == 0 {
		return nil, database.ErrInventoryNotFound
	}

	return records, nil
}

// AdjustInventory applies a signed delta (restock or manual correction).
// The update is conditional on the result staying non-negative.
func AdjustInventory(ctx context.Context, db *sql.DB, id int64, delta int) (*models.Inventory, error) {
	query := fmt.Sprintf(`
		UPDATE inventory
		SET quantity = quantity + $1, updated_at = NOW()
		WHERE id = $2 AND quantity + $1 >= 0
		RETURNING %s`, inventoryColumns)

	inv, err := scanInventory(db.QueryRowContext(ctx, query, delta, id))
	if err == nil {
		return inv, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("adjust inventory: %w", err)
	}

	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM inventory WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check inventory exists: %w", err)
	}
	if !exists {
		return nil, database.ErrInventoryNotFound
	}
	return nil, database.ErrInsufficientStock
}

// ResetInventory sets an absolute quantity for (product, warehouse).
func ResetInventory(ctx context.Context, db *sql.DB, productID int64, warehouse string, quantity int) (*models.Inventory, error) {
	query := fmt.Sprintf(`
		UPDATE inventory
		SET quantity = $3, updated_at = NOW()
		WHERE product_id = $1 AND warehouse = $2
		RETURNING %s`, inventoryColumns)

	inv, err := scanInventory(db.QueryRowContext(ctx, query, productID, warehouse, quantity))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrInventoryNotFound
		}
		return nil, fmt.Errorf("reset inventory: %w", err)
	}

	return inv, nil
}

func ListLowStock(ctx context.Context, db *sql.DB) ([]models.Inventory, error) {
	query := fmt.Sprintf(`SELECT %s FROM inventory WHERE quantity < safe_stock ORDER BY product_id, warehouse`, inventoryColumns)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()

	var records []models.Inventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		records = append(records, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}

// ReserveStock decrements available quantity for (product, warehouse) as a
// single conditional update. Nothing is mutated when the remaining stock
// cannot cover the request.
func ReserveStock(ctx context.Context, q DBTX, productID int64, warehouse string, quantity int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE inventory
		 SET quantity = quantity - $3, updated_at = NOW()
		 WHERE product_id = $1
		   AND warehouse = $2
		   AND quantity >= $3`,
		productID, warehouse, quantity)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM inventory WHERE product_id = $1 AND warehouse = $2)`,
		productID, warehouse).Scan(&exists); err != nil {
		return fmt.Errorf("check inventory exists: %w", err)
	}
	if !exists {
		return database.ErrInventoryNotFound
	}
	return database.ErrInsufficientStock
}

// ReleaseStock gives reserved quantity back, used by checkout compensation
// and order cancellation.
func ReleaseStock(ctx context.Context, q DBTX, productID int64, warehouse string, quantity int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE inventory
		 SET quantity = quantity + $3, updated_at = NOW()
		 WHERE product_id = $1 AND warehouse = $2`,
		productID, warehouse, quantity)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrInventoryNotFound
	}

	return nil
}
