package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func Connect(dbURL string) (*sqlx.DB, error) {
	log.Println("🔌 Connecting to Postgres...")

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Printf("❌ sqlx.Connect() failed: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		log.Printf("❌ Ping() failed: %v", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ Database connection established")
	return db, nil
}

func Migrate(db *sqlx.DB) error {
	migrations := []string{
		// Create users table (drivers, staff dispatchers, admins)
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('driver', 'staff', 'admin')),
			available BOOLEAN NOT NULL DEFAULT FALSE,
			fcm_token TEXT,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		// Create orders table. assigned_driver is the compare-and-set target
		// of the acceptance race: it is only ever written by the conditioned
		// UPDATE in TryAssign.
		`CREATE TABLE IF NOT EXISTS orders (
			order_number TEXT PRIMARY KEY,
			customer_name TEXT NOT NULL,
			customer_phone TEXT NOT NULL,
			customer_address TEXT NOT NULL,
			customer_lat DOUBLE PRECISION NOT NULL,
			customer_lng DOUBLE PRECISION NOT NULL,
			item_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'received' CHECK(status IN ('received', 'in_transit', 'delivered')),
			assigned_driver TEXT REFERENCES users(id),
			tracked_lat DOUBLE PRECISION,
			tracked_lng DOUBLE PRECISION,
			last_location_at BIGINT,
			rating INT CHECK(rating BETWEEN 1 AND 5),
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_assigned_driver ON orders(assigned_driver)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("✅ Database migrations completed")
	return nil
}
