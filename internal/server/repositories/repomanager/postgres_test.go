package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/auditentries"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/cabinetkeys"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/members"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/permissions"
	"github.com/pressly/goose/v3"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := NewPostgresRepositoryManager()

	var _ permissions.Repository = m.Permissions(db)
	var _ auditentries.Repository = m.Audit(db)
	var _ cabinetkeys.Repository = m.CabinetKeys(db)
	var _ members.Repository = m.Members(db)

	if m.Permissions(db) == nil || m.Audit(db) == nil || m.CabinetKeys(db) == nil || m.Members(db) == nil {
		t.Fatal("nil repository")
	}
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	if err := NewPostgresRepositoryManager().RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	if err := NewPostgresRepositoryManager().RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestOpenPostgres(t *testing.T) {
	orig := sqlOpen
	defer func() { sqlOpen = orig }()

	t.Run("ok", func(t *testing.T) {
		db, mock := newDB(t)
		mock.ExpectPing()
		sqlOpen = func(driver, dsn string) (*sql.DB, error) {
			if driver != "pgx" || dsn != "postgres://x" {
				t.Fatalf("unexpected open(%q, %q)", driver, dsn)
			}
			return db, nil
		}

		got, err := OpenPostgres(context.Background(), "postgres://x")
		if err != nil || got != db {
			t.Fatalf("OpenPostgres = %v, %v", got, err)
		}
		_ = got.Close()
	})

	t.Run("ping fails", func(t *testing.T) {
		db, mock := newDB(t)
		mock.ExpectPing().WillReturnError(errors.New("refused"))
		sqlOpen = func(string, string) (*sql.DB, error) { return db, nil }

		if _, err := OpenPostgres(context.Background(), "postgres://x"); err == nil {
			t.Fatal("expected ping error")
		}
	})

	t.Run("open fails", func(t *testing.T) {
		sqlOpen = func(string, string) (*sql.DB, error) { return nil, errors.New("bad driver") }

		if _, err := OpenPostgres(context.Background(), "postgres://x"); err == nil {
			t.Fatal("expected open error")
		}
	})
}
