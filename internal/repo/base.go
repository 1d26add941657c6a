// Package repo holds the connection plumbing shared by domain repositories.
package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by repositories. It carries either the pool or, after
// Bind, a caller's transaction, so one repository type serves both.
type Base struct {
	conn *gorm.DB
}

func NewBase(conn *gorm.DB) Base { return Base{conn: conn} }

// DB scopes the connection to ctx so cancellation reaches the driver.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx != nil {
		return b.conn.WithContext(ctx)
	}
	return b.conn
}

// Bind returns a copy of b running on tx; a nil tx returns b unchanged.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx != nil {
		b.conn = tx
	}
	return b
}
