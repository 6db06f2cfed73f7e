package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/money"
)

var ErrOrderNotFound = errors.New("order not found")

// Repository is the remote orders store. Every method takes a row id, so a
// local order can never reach it.
type Repository interface {
	Ping(ctx context.Context) error
	CreateOrder(ctx context.Context, o *Order) (uuid.UUID, error)
	CreateItems(ctx context.Context, orderID uuid.UUID, items []Item) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderStatus(ctx context.Context, id uuid.UUID) (Status, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status Status) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("repository: ping failed: %w", err)
	}
	return nil
}

// CreateOrder inserts the order row and fills in the server-assigned id and
// timestamps.
func (r *postgresRepository) CreateOrder(ctx context.Context, o *Order) (uuid.UUID, error) {
	query := `
		INSERT INTO orders (restaurant_id, customer_name, customer_email, customer_user_id, table_number,
			status, subtotal_amount, discount_amount, total_amount, coupon_code, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id, created_at, updated_at
	`

	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id uuid.UUID
	err := r.db.QueryRow(ctx, query,
		o.RestaurantID,
		o.CustomerName,
		o.CustomerEmail,
		o.CustomerUserID,
		o.TableNumber,
		string(o.Status),
		money.ToNumeric(o.Subtotal),
		money.ToNumeric(o.Discount),
		money.ToNumeric(o.TotalAmount),
		o.CouponCode,
		o.Notes,
		createdAt,
	).Scan(&id, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to insert order: %w", err)
	}

	o.ID = RemoteID(id)
	return id, nil
}

// CreateItems writes all items of an order in one transaction.
func (r *postgresRepository) CreateItems(ctx context.Context, orderID uuid.UUID, items []Item) (err error) {
	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Stringer("order_id", orderID).Msg("repository: panic recovered during CreateItems, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", orderID).Msg("repository: failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			log.Warn().Err(err).Stringer("order_id", orderID).Msg("repository: CreateItems failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", orderID).Msg("repository: failed to rollback transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Stringer("order_id", orderID).Msg("repository: failed to commit transaction")
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	query := `
		INSERT INTO order_items (id, order_id, line_no, menu_item_id, name, variant_name, addon_names, quantity,
			unit_price, total_price, special_instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	batch := &pgx.Batch{}
	for i := range items {
		item := &items[i]

		if item.ID == uuid.Nil {
			itemID, genErr := uuid.NewV4()
			if genErr != nil {
				return fmt.Errorf("repository: failed to generate order item id: %w", genErr)
			}
			item.ID = itemID
		}
		item.OrderID = orderID

		addons := item.AddonNames
		if addons == nil {
			addons = []string{}
		}

		batch.Queue(query,
			item.ID,
			orderID,
			i+1,
			item.MenuItemID,
			item.Name,
			item.VariantName,
			addons,
			item.Quantity,
			money.ToNumeric(item.UnitPrice),
			money.ToNumeric(item.TotalPrice),
			item.SpecialInstructions,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range items {
		if _, execErr := br.Exec(); execErr != nil {
			_ = br.Close()
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", orderID, execErr)
		}
	}
	if closeErr := br.Close(); closeErr != nil {
		return fmt.Errorf("repository: failed to close item batch for order %s: %w", orderID, closeErr)
	}

	return nil
}

func (r *postgresRepository) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	queryOrder := `
		SELECT id, restaurant_id, customer_name, customer_email, customer_user_id, table_number, status,
			subtotal_amount, discount_amount, total_amount, coupon_code, notes, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var (
		o                         Order
		rowID                     uuid.UUID
		status                    string
		subtotal, discount, total pgtype.Numeric
	)
	err := r.db.QueryRow(ctx, queryOrder, id).Scan(
		&rowID,
		&o.RestaurantID,
		&o.CustomerName,
		&o.CustomerEmail,
		&o.CustomerUserID,
		&o.TableNumber,
		&status,
		&subtotal,
		&discount,
		&total,
		&o.CouponCode,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}
	o.ID = RemoteID(rowID)
	o.Status = ParseStatus(status)
	o.Subtotal = money.FromNumeric(subtotal)
	o.Discount = money.FromNumeric(discount)
	o.TotalAmount = money.FromNumeric(total)

	queryItems := `
		SELECT id, order_id, menu_item_id, name, variant_name, addon_names, quantity, unit_price, total_price,
			special_instructions
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no
	`

	rows, err := r.db.Query(ctx, queryItems, id)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order id %s: %w", id, err)
	}
	defer rows.Close()

	o.Items = make([]Item, 0)
	for rows.Next() {
		var (
			item        Item
			unit, lineT pgtype.Numeric
		)
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.MenuItemID,
			&item.Name,
			&item.VariantName,
			&item.AddonNames,
			&item.Quantity,
			&unit,
			&lineT,
			&item.SpecialInstructions,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order id %s: %w", id, err)
		}
		item.UnitPrice = money.FromNumeric(unit)
		item.TotalPrice = money.FromNumeric(lineT)
		o.Items = append(o.Items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order id %s: %w", id, err)
	}

	return &o, nil
}

func (r *postgresRepository) GetOrderStatus(ctx context.Context, id uuid.UUID) (Status, error) {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOrderNotFound
		}
		return "", fmt.Errorf("repository: failed to select status of order %s: %w", id, err)
	}
	return ParseStatus(status), nil
}

func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status Status) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	cmdTag, err := r.db.Exec(ctx, query, string(status), time.Now().UTC(), id)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Stringer("new_status", status).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update order status %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		log.Warn().Stringer("order_id", id).Stringer("new_status", status).Msg("repository: order not found for status update")
		return ErrOrderNotFound
	}

	return nil
}
