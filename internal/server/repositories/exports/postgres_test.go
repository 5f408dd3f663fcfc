package exports

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var cols = []string{"id", "requested_by", "storage_key", "from_date", "to_date", "user_filter", "row_count", "upload_status", "created_at"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+exports\s*\(requested_by,\s*storage_key,\s*from_date,\s*to_date,\s*user_filter,\s*upload_status\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*'pending'\)\s*RETURNING\s+id,\s*upload_status,\s*created_at$`

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	mock.ExpectQuery(q).
		WithArgs("admin-1", "exports/2024/06/01/x.csv.gz", from, to, "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "upload_status", "created_at"}).AddRow("ex-1", "pending", time.Now()))

	got, err := repo.Create(context.Background(), &models.Export{
		RequestedBy: "admin-1", StorageKey: "exports/2024/06/01/x.csv.gz", From: from, To: to,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "ex-1" || got.UploadStatus != models.UploadPending {
		t.Fatalf("unexpected export: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+exports`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Export{})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestMarkUploaded_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^update\s+exports\s+set\s+upload_status='completed',\s*row_count=\$2\s+where\s+id=\$1$`
	mock.ExpectExec(q).WithArgs("ex-1", 12).WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkUploaded(context.Background(), "ex-1", 12); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarkUploaded_WrongRowsAffected(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`update\s+exports`).WithArgs("ex-1", 0).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkUploaded(context.Background(), "ex-1", 0)
	if err == nil || !regexp.MustCompile(`wrong rows affected count: 0`).MatchString(err.Error()) {
		t.Fatalf("expected rows affected error, got %v", err)
	}
}

func TestMarkUploaded_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`update\s+exports`).WillReturnError(errors.New("db err"))

	err := repo.MarkUploaded(context.Background(), "ex-1", 1)
	if err == nil || !regexp.MustCompile(`failed to mark uploaded: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM\s+exports\s+WHERE\s+id=\$1`).WithArgs("ex-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("ex-1", "admin-1", "k", now, now, "u-1", 7, "completed", now))

	got, err := repo.ByID(context.Background(), "ex-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StorageKey != "k" || got.RowCount != 7 || got.UserFilter != "u-1" {
		t.Fatalf("unexpected export: %+v", got)
	}
}

func TestByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+exports`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	if _, err := repo.ByID(context.Background(), "ghost"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestListRecent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$1`).WithArgs(10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("ex-2", "admin-1", "k2", now, now, "", 3, "completed", now).
			AddRow("ex-1", "admin-1", "k1", now, now, "", 0, "pending", now))

	got, err := repo.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "ex-2" {
		t.Fatalf("unexpected list: %+v", got)
	}
}
