package sqlshape

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"
)

// fakeDriver lets NewSQLRepository be exercised without a real database
// engine: sql.Register gives us a *sql.DB backed by a no-op driver whose
// calls simply succeed, enough to prove the query plumbing is wired.
type fakeDriver struct{}

func (fakeDriver) Open(name string) (driver.Conn, error) { return fakeConn{}, nil }

type fakeConn struct{}

func (fakeConn) Prepare(query string) (driver.Stmt, error) { return fakeStmt{}, nil }
func (fakeConn) Close() error                              { return nil }
func (fakeConn) Begin() (driver.Tx, error)                 { return fakeTx{}, nil }

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeStmt struct{}

func (fakeStmt) Close() error  { return nil }
func (fakeStmt) NumInput() int { return -1 }
func (fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	return fakeResult{}, nil
}
func (fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	return &fakeRows{}, nil
}

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeRows struct{ read bool }

func (*fakeRows) Columns() []string { return []string{"user_id", "nickname", "created_at"} }
func (*fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.read {
		return sql.ErrNoRows
	}
	r.read = true
	dest[0] = int64(42)
	dest[1] = "alice"
	dest[2] = time.Now()
	return nil
}

func newFakeDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlshape-fake", "")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	return db
}

func init() {
	sql.Register("sqlshape-fake", fakeDriver{})
}

func TestUpsertUserExecutesWithoutError(t *testing.T) {
	db := newFakeDB(t)
	defer db.Close()
	repo := NewSQLRepository(db)

	err := repo.UpsertUser(context.Background(), UserRecord{UserID: 1, Nickname: "bob", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
}

func TestUpsertRoomExecutesWithoutError(t *testing.T) {
	db := newFakeDB(t)
	defer db.Close()
	repo := NewSQLRepository(db)

	err := repo.UpsertRoom(context.Background(), RoomRecord{RoomID: 7, Name: "lobby", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("UpsertRoom: %v", err)
	}
}

func TestUserByIDScansRow(t *testing.T) {
	db := newFakeDB(t)
	defer db.Close()
	repo := NewSQLRepository(db)

	u, err := repo.UserByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if u.UserID != 42 || u.Nickname != "alice" {
		t.Fatalf("user = %+v", u)
	}
}
