package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect поддерживаемая СУБД
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// sqliteTimeLayout фиксированной ширины, чтобы сравнение строк совпадало
// с порядком времени
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

// ParseDialect распознаёт значение DB_DRIVER
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", s)
	}
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return string(d)
}

// Open открывает пул соединений и проверяет его ping
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	switch d {
	case DialectSQLite:
		if !strings.Contains(dsn, "_pragma=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
		}
	case DialectMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("mysql: parse dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		// RowsAffected считает найденные строки, а не изменённые
		cfg.ClientFoundRows = true
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d, err)
	}
	if d == DialectSQLite {
		// один писатель; для :memory: это ещё и единственная копия базы
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d, err)
	}
	return db, nil
}

// rebind заменяет ? на $n для postgres
func (d Dialect) rebind(q string) string {
	if d != DialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) timeArg(t time.Time) any {
	t = t.UTC().Truncate(time.Microsecond)
	if d == DialectSQLite {
		return t.Format(sqliteTimeLayout)
	}
	return t
}

// dbTime читает время из TEXT (sqlite) и нативных типов mysql/postgres
type dbTime struct{ t *time.Time }

func (s dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*s.t = v.UTC()
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	case nil:
		*s.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (s dbTime) parse(v string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999"} {
		if t, err := time.Parse(layout, v); err == nil {
			*s.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", v)
}

func (d Dialect) schema() []string {
	switch d {
	case DialectMySQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS orders (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				user_id BIGINT NOT NULL,
				order_date DATETIME(6) NOT NULL,
				status VARCHAR(16) NOT NULL,
				total_amount DECIMAL(12,2) NOT NULL,
				shipping_address VARCHAR(255) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				INDEX idx_orders_user (user_id),
				INDEX idx_orders_status (status),
				INDEX idx_orders_date (order_date)
			)`,
			`CREATE TABLE IF NOT EXISTS order_items (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				order_id BIGINT NOT NULL,
				product_id BIGINT NOT NULL,
				product_name VARCHAR(255) NOT NULL,
				unit_price DECIMAL(12,2) NOT NULL,
				quantity INT NOT NULL,
				subtotal DECIMAL(12,2) NOT NULL,
				INDEX idx_items_order (order_id),
				CONSTRAINT fk_items_order FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
			)`,
		}
	case DialectPostgres:
		return []string{
			`CREATE TABLE IF NOT EXISTS orders (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL,
				order_date TIMESTAMPTZ NOT NULL,
				status VARCHAR(16) NOT NULL,
				total_amount NUMERIC(12,2) NOT NULL,
				shipping_address VARCHAR(255) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_date ON orders(order_date)`,
			`CREATE TABLE IF NOT EXISTS order_items (
				id BIGSERIAL PRIMARY KEY,
				order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
				product_id BIGINT NOT NULL,
				product_name VARCHAR(255) NOT NULL,
				unit_price NUMERIC(12,2) NOT NULL,
				quantity INT NOT NULL,
				subtotal NUMERIC(12,2) NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_items_order ON order_items(order_id)`,
		}
	default:
		return []string{
			`CREATE TABLE IF NOT EXISTS orders (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				order_date TEXT NOT NULL,
				status TEXT NOT NULL,
				total_amount TEXT NOT NULL,
				shipping_address TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_date ON orders(order_date)`,
			`CREATE TABLE IF NOT EXISTS order_items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
				product_id INTEGER NOT NULL,
				product_name TEXT NOT NULL,
				unit_price TEXT NOT NULL,
				quantity INTEGER NOT NULL,
				subtotal TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_items_order ON order_items(order_id)`,
		}
	}
}
