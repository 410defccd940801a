// Package mysql is the gorm-backed implementation of store.Store.
package mysql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/imrishuroy/go-idempotent-checkout/internal/config"
	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
	"github.com/imrishuroy/go-idempotent-checkout/internal/tracing"
)

//go:embed migrations/*.sql
var migrations embed.FS

const errDuplicateEntry = 1062

// Store implements store.Store on MySQL through gorm.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects, pings and optionally migrates.
func Open(ctx context.Context, cfg config.MySQL) (*Store, error) {
	dsn, err := NormalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	if cfg.Migrate {
		if err := RunMigrations(sqlDB); err != nil {
			return nil, err
		}
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// NormalizeDSN forces the driver options the store depends on.
func NormalizeDSN(dsn string) (string, error) {
	c, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	c.ParseTime = true
	c.MultiStatements = true
	c.Loc = time.UTC
	return c.FormatDSN(), nil
}

// RunMigrations applies the embedded schema.
func RunMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}
	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{MigrationsTable: "checkout_schema_migrations"})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isDuplicate(err error) bool {
	var me *mysqldriver.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var m productModel
	err := s.db.WithContext(ctx).Preload("Tiers").First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	p := toDomainProduct(&m)
	return &p, nil
}

func (s *Store) GetOrCreateCart(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	db := s.db.WithContext(ctx)
	var m cartModel
	err := db.Where(cartModel{SessionKey: sessionKey}).FirstOrCreate(&m).Error
	if isDuplicate(err) {
		// lost the insert race against another request for the same session
		err = db.Where("session_key = ?", sessionKey).First(&m).Error
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	err = db.Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Preload("Items.Product.Tiers").
		First(&m, m.ID).Error
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return toDomainCart(&m), nil
}

func (s *Store) AddCartItem(ctx context.Context, cartID, productID int64, qty int) (*domain.CartItem, error) {
	db := s.db.WithContext(ctx)
	now := s.now()
	row := cartItemModel{CartID: cartID, ProductID: productID, Quantity: qty, CreatedAt: now, UpdatedAt: now}
	err := db.Omit("Product").Clauses(clause.OnConflict{
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":   gorm.Expr("quantity + ?", qty),
			"updated_at": now,
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	var m cartItemModel
	err = db.Preload("Product.Tiers").
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&m).Error
	if err != nil {
		return nil, fmt.Errorf("reload cart item: %w", err)
	}
	db.Model(&cartModel{}).Where("id = ?", cartID).Update("updated_at", now)
	item := toDomainCartItem(&m)
	return &item, nil
}

func (s *Store) SetCartItemQuantity(ctx context.Context, cartID, itemID int64, qty int) error {
	res := s.db.WithContext(ctx).Model(&cartItemModel{}).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Updates(map[string]interface{}{"quantity": qty, "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("set cart item quantity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.cartItemExists(ctx, cartID, itemID)
	}
	return nil
}

// cartItemExists separates "no such row" from "row already had this value",
// which MySQL also reports as zero rows affected.
func (s *Store) cartItemExists(ctx context.Context, cartID, itemID int64) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&cartItemModel{}).Where("id = ? AND cart_id = ?", itemID, cartID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("cart item %d: %w", itemID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteCartItem(ctx context.Context, cartID, itemID int64) error {
	res := s.db.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).Delete(&cartItemModel{})
	if res.Error != nil {
		return fmt.Errorf("delete cart item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("cart item %d: %w", itemID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) FindPromo(ctx context.Context, code string) (*domain.PromoCode, error) {
	var m promoModel
	err := s.db.WithContext(ctx).Where("code = ?", domain.NormalizeCode(code)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find promo: %w", err)
	}
	return toDomainPromo(&m), nil
}

func (s *Store) findOrder(ctx context.Context, query string, arg interface{}) (*domain.Order, error) {
	var m orderModel
	err := s.db.WithContext(ctx).Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Where(query, arg).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return toDomainOrder(&m), nil
}

func (s *Store) GetOrder(ctx context.Context, number string) (*domain.Order, error) {
	return s.findOrder(ctx, "order_number = ?", number)
}

func (s *Store) FindOrderByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error) {
	if paymentID == "" {
		return nil, nil
	}
	return s.findOrder(ctx, "payment_id = ?", paymentID)
}

func (s *Store) FindOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return s.findOrder(ctx, "idempotency_key = ?", key)
}

func (s *Store) CustomerHistory(ctx context.Context, email, promoCode string) (domain.CustomerHistory, error) {
	var row struct {
		Orders   int
		CodeUses int
	}
	err := s.db.WithContext(ctx).Model(&orderModel{}).
		Select("COUNT(*) AS orders, COALESCE(SUM(CASE WHEN promo_code <> '' AND promo_code = ? THEN 1 ELSE 0 END), 0) AS code_uses",
			domain.NormalizeCode(promoCode)).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		Scan(&row).Error
	if err != nil {
		return domain.CustomerHistory{}, fmt.Errorf("customer history: %w", err)
	}
	return domain.CustomerHistory{CodeUses: row.CodeUses, Orders: row.Orders}, nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, number string, expected, next domain.PaymentStatus) error {
	res := s.db.WithContext(ctx).Model(&orderModel{}).
		Where("order_number = ? AND payment_status = ?", number, string(expected)).
		Updates(map[string]interface{}{"payment_status": string(next), "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("update payment status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrConditionFailed
	}
	return nil
}

func (s *Store) MarkNotified(ctx context.Context, number string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&orderModel{}).
		Where("order_number = ? AND notified_at IS NULL", number).
		Update("notified_at", at)
	if res.Error != nil {
		return fmt.Errorf("mark notified: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrConditionFailed
	}
	return nil
}

func (s *Store) ReserveStock(ctx context.Context, productID int64, qty int) error {
	return s.WithProductLocks(ctx, []int64{productID}, func(tx store.Tx, _ map[int64]domain.Product) error {
		return tx.ReserveStock(ctx, productID, qty)
	})
}

// WithProductLocks locks each product with SELECT ... FOR UPDATE, one row at a
// time in ascending id order, so concurrent checkouts over overlapping carts
// always acquire locks in the same order.
func (s *Store) WithProductLocks(ctx context.Context, productIDs []int64, fn func(tx store.Tx, locked map[int64]domain.Product) error) error {
	ctx, span := tracing.Start(ctx, "store.WithProductLocks")
	defer span.End()

	ids := store.SortedIDs(productIDs)
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		locked := make(map[int64]domain.Product, len(ids))
		for _, id := range ids {
			var m productModel
			err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, id).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("lock product %d: %w", id, err)
			}
			locked[id] = toDomainProduct(&m)
		}
		return fn(&sqlTx{db: db, now: s.now}, locked)
	})
}
