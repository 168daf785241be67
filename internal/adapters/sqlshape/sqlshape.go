// Package sqlshape defines the persistent-storage shapes a future
// durable backing store would need, without wiring a driver. spec.md's
// Non-goals explicitly exclude persistent storage; this package exists
// only so the shape of that future integration is recorded, using
// stdlib database/sql rather than a third-party ORM/driver because no
// concrete database is in scope to justify picking one.
package sqlshape

import (
	"context"
	"database/sql"
	"time"
)

// UserRecord is the durable shape of one user, if a persistent store
// were wired in.
type UserRecord struct {
	UserID    uint64
	Nickname  string
	CreatedAt time.Time
}

// RoomRecord is the durable shape of one room.
type RoomRecord struct {
	RoomID    uint64
	Name      string
	CreatedAt time.Time
}

// Repository is the storage-agnostic interface a concrete driver-backed
// implementation would satisfy. No implementation is registered; callers
// needing persistence must supply their own *sql.DB-backed type.
type Repository interface {
	UpsertUser(ctx context.Context, u UserRecord) error
	UpsertRoom(ctx context.Context, r RoomRecord) error
	UserByID(ctx context.Context, userID uint64) (UserRecord, error)
}

// sqlRepository is a reference shape showing how Repository would be
// implemented over database/sql; it is never constructed with a live
// driver by this module, and exists to document the intended query
// surface rather than to be used directly.
type sqlRepository struct {
	db *sql.DB
}

// NewSQLRepository wraps db. The caller is responsible for opening db
// with whichever driver (postgres, mysql, sqlite) their deployment needs;
// this package takes no dependency on any specific driver package.
func NewSQLRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

func (r *sqlRepository) UpsertUser(ctx context.Context, u UserRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (user_id, nickname, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET nickname = excluded.nickname`,
		u.UserID, u.Nickname, u.CreatedAt)
	return err
}

func (r *sqlRepository) UpsertRoom(ctx context.Context, rm RoomRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rooms (room_id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (room_id) DO UPDATE SET name = excluded.name`,
		rm.RoomID, rm.Name, rm.CreatedAt)
	return err
}

func (r *sqlRepository) UserByID(ctx context.Context, userID uint64) (UserRecord, error) {
	var u UserRecord
	row := r.db.QueryRowContext(ctx, `SELECT user_id, nickname, created_at FROM users WHERE user_id = ?`, userID)
	err := row.Scan(&u.UserID, &u.Nickname, &u.CreatedAt)
	return u, err
}
