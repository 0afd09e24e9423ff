package repositories

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var messageCols = []string{
	"id", "project_id", "sender_id", "sender_username",
	"content", "metadata", "created_at", "edited_at", "deleted",
}

func newMessageRepo(t *testing.T) (*MessageRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewMessageRepository(db), mock
}

func messageRow(id int64, createdAt time.Time) []driver.Value {
	return []driver.Value{id, int64(7), int64(2), "alice", "hello", []byte(`{}`), createdAt, nil, false}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestMessageCreate_CommitsInsertAndPreview(t *testing.T) {
	repo, mock := newMessageRepo(t)
	created := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("WITH ins AS \\( INSERT INTO messages").
		WithArgs(int64(7), int64(2), "hello", `{"client_id":"x"}`).
		WillReturnRows(sqlmock.NewRows(messageCols).AddRow(messageRow(31, created)...))
	mock.ExpectExec(`UPDATE projects SET last_message_at = CASE WHEN last_message_at IS NULL OR last_message_at <= \$2`).
		WithArgs(int64(7), created, int64(31)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := repo.Create(context.Background(), 7, 2, "hello", json.RawMessage(`{"client_id":"x"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != 31 || !msg.CreatedAt.Equal(created) {
		t.Errorf("msg = %+v, want id 31 created %v", msg, created)
	}
	if msg.SenderUsername == nil || *msg.SenderUsername != "alice" {
		t.Errorf("SenderUsername = %v, want alice", msg.SenderUsername)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMessageCreate_InsertErrorRollsBack(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("WITH ins AS").WillReturnError(errDB)
	mock.ExpectRollback()

	if _, err := repo.Create(context.Background(), 7, 2, "hello", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMessageCreate_ProjectGoneRollsBack(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("WITH ins AS").
		WillReturnRows(sqlmock.NewRows(messageCols).AddRow(messageRow(31, time.Now())...))
	mock.ExpectExec("UPDATE projects").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), 7, 2, "hello", json.RawMessage(`{}`))
	if !errors.Is(err, ErrProjectGone) {
		t.Fatalf("err = %v, want ErrProjectGone", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMessageCreate_CommitError(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("WITH ins AS").
		WillReturnRows(sqlmock.NewRows(messageCols).AddRow(messageRow(31, time.Now())...))
	mock.ExpectExec("UPDATE projects").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errDB)

	if _, err := repo.Create(context.Background(), 7, 2, "hello", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// ListBefore
// ---------------------------------------------------------------------------

func TestListBefore_NoCursor(t *testing.T) {
	repo, mock := newMessageRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT.*FROM messages m.*created_at < \\$2.*ORDER BY m.created_at DESC.*LIMIT").
		WithArgs(int64(7), nil, 50).
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow(messageRow(32, now)...).
			AddRow(messageRow(31, now.Add(-time.Second))...))

	msgs, err := repo.ListBefore(context.Background(), 7, nil, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != 32 || msgs[1].ID != 31 {
		t.Errorf("msgs = %+v, want ids 32,31", msgs)
	}
}

func TestListBefore_WithCursor(t *testing.T) {
	repo, mock := newMessageRepo(t)
	cursor := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT.*FROM messages m").
		WithArgs(int64(7), cursor, 20).
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow(messageRow(5, cursor.Add(-time.Minute))...))

	msgs, err := repo.ListBefore(context.Background(), 7, &cursor, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || !msgs[0].CreatedAt.Before(cursor) {
		t.Errorf("msgs = %+v, want one message older than cursor", msgs)
	}
}

func TestListBefore_DBError(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectQuery("SELECT.*FROM messages m").WillReturnError(errDB)

	if _, err := repo.ListBefore(context.Background(), 7, nil, 50); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Edit / SoftDelete
// ---------------------------------------------------------------------------

func TestMessageEdit_Success(t *testing.T) {
	repo, mock := newMessageRepo(t)
	edited := time.Now()
	mock.ExpectQuery("WITH upd AS \\( UPDATE messages SET content").
		WithArgs(int64(31), int64(2), "hello again").
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow(int64(31), int64(7), int64(2), "alice", "hello again", []byte(`{}`), time.Now(), edited, false))

	msg, err := repo.Edit(context.Background(), 31, 2, "hello again")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil || msg.Content != "hello again" || msg.EditedAt == nil {
		t.Errorf("msg = %+v, want edited content", msg)
	}
}

func TestMessageEdit_NotSender(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectQuery("WITH upd AS").
		WithArgs(int64(31), int64(9), "nope").
		WillReturnRows(sqlmock.NewRows(messageCols))

	msg, err := repo.Edit(context.Background(), 31, 9, "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != nil {
		t.Errorf("msg = %+v, want nil", msg)
	}
}

func TestMessageSoftDelete_Success(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectQuery("UPDATE messages m SET deleted = true FROM projects p").
		WithArgs(int64(31), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(int64(7)))

	projectID, ok, err := repo.SoftDelete(context.Background(), 31, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || projectID != 7 {
		t.Errorf("SoftDelete = (%d, %v), want (7, true)", projectID, ok)
	}
}

func TestMessageSoftDelete_GuardFails(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectQuery("UPDATE messages m SET deleted = true").
		WithArgs(int64(31), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}))

	_, ok, err := repo.SoftDelete(context.Background(), 31, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("ok = true, want false")
	}
}
