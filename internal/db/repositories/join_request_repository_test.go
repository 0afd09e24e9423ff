package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/projecthub/projecthub/internal/db/models"
)

var joinRequestCols = []string{"id", "user_id", "project_id", "status", "requested_at", "decided_at"}

func newJoinRequestRepo(t *testing.T) (*JoinRequestRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewJoinRequestRepository(db), mock
}

func joinRequestRow(status string, decided *time.Time) *sqlmock.Rows {
	var decidedVal interface{}
	if decided != nil {
		decidedVal = *decided
	}
	return sqlmock.NewRows(joinRequestCols).
		AddRow(int64(11), int64(2), int64(7), status, time.Now(), decidedVal)
}

// ---------------------------------------------------------------------------
// CreateIfAbsent
// ---------------------------------------------------------------------------

func TestCreateIfAbsent_Created(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	mock.ExpectQuery("INSERT INTO join_requests.*SELECT.*FROM projects p.*owner_id <>.*ON CONFLICT.*DO NOTHING").
		WithArgs(int64(2), int64(7)).
		WillReturnRows(joinRequestRow("pending", nil))

	jr, created, err := repo.CreateIfAbsent(context.Background(), 2, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if jr == nil || jr.Status != models.JoinRequestPending {
		t.Errorf("jr = %+v, want pending", jr)
	}
}

func TestCreateIfAbsent_AlreadyExists(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	mock.ExpectQuery("INSERT INTO join_requests").
		WithArgs(int64(2), int64(7)).
		WillReturnRows(sqlmock.NewRows(joinRequestCols))

	jr, created, err := repo.CreateIfAbsent(context.Background(), 2, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("created = true on conflict, want false")
	}
	if jr != nil {
		t.Errorf("jr = %+v, want nil", jr)
	}
}

func TestCreateIfAbsent_DBError(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	mock.ExpectQuery("INSERT INTO join_requests").
		WillReturnError(errDB)

	if _, _, err := repo.CreateIfAbsent(context.Background(), 2, 7); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Accept
// ---------------------------------------------------------------------------

func TestAccept_Success(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	decided := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE join_requests jr SET status.*FROM projects p.*owner_id = \\$2.*status = 'pending'").
		WithArgs(int64(11), int64(1), "accepted").
		WillReturnRows(joinRequestRow("accepted", &decided))
	mock.ExpectExec("INSERT INTO project_members.*ON CONFLICT").
		WithArgs(int64(7), int64(2), "member").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	jr, err := repo.Accept(context.Background(), 11, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jr == nil || jr.Status != models.JoinRequestAccepted {
		t.Fatalf("jr = %+v, want accepted", jr)
	}
	if jr.DecidedAt == nil {
		t.Error("DecidedAt = nil, want timestamp")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAccept_GuardFailsLeavesMembershipUntouched(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE join_requests jr").
		WithArgs(int64(11), int64(5), "accepted").
		WillReturnRows(sqlmock.NewRows(joinRequestCols))
	mock.ExpectRollback()

	jr, err := repo.Accept(context.Background(), 11, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jr != nil {
		t.Errorf("jr = %+v, want nil", jr)
	}
	// No INSERT INTO project_members expectation: any such call would fail here.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAccept_MembershipInsertErrorRollsBack(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	decided := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE join_requests jr").
		WillReturnRows(joinRequestRow("accepted", &decided))
	mock.ExpectExec("INSERT INTO project_members").
		WillReturnError(errDB)
	mock.ExpectRollback()

	if _, err := repo.Accept(context.Background(), 11, 1); err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAccept_CommitError(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	decided := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE join_requests jr").
		WillReturnRows(joinRequestRow("accepted", &decided))
	mock.ExpectExec("INSERT INTO project_members").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errDB)

	if _, err := repo.Accept(context.Background(), 11, 1); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Reject
// ---------------------------------------------------------------------------

func TestReject_Success(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	decided := time.Now()
	mock.ExpectQuery("UPDATE join_requests jr").
		WithArgs(int64(11), int64(1), "rejected").
		WillReturnRows(joinRequestRow("rejected", &decided))

	jr, err := repo.Reject(context.Background(), 11, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jr == nil || jr.Status != models.JoinRequestRejected {
		t.Errorf("jr = %+v, want rejected", jr)
	}
}

func TestReject_GuardFails(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	mock.ExpectQuery("UPDATE join_requests jr").
		WithArgs(int64(11), int64(1), "rejected").
		WillReturnRows(sqlmock.NewRows(joinRequestCols))

	jr, err := repo.Reject(context.Background(), 11, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jr != nil {
		t.Errorf("jr = %+v, want nil", jr)
	}
}

// ---------------------------------------------------------------------------
// Lookups and listings
// ---------------------------------------------------------------------------

func TestListByProject_WithStatusFilter(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	cols := append(append([]string{}, joinRequestCols...), "username", "project_name")
	mock.ExpectQuery("SELECT.*FROM join_requests jr.*WHERE jr.project_id").
		WithArgs(int64(7), "pending").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(11), int64(2), int64(7), "pending", time.Now(), nil, "alice", "apollo"))

	status := models.JoinRequestPending
	reqs, err := repo.ListByProject(context.Background(), 7, &status)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 1 || reqs[0].Username != "alice" || reqs[0].ProjectName != "apollo" {
		t.Errorf("reqs = %+v", reqs)
	}
}

func TestListByProject_NoFilter(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	cols := append(append([]string{}, joinRequestCols...), "username", "project_name")
	mock.ExpectQuery("SELECT.*FROM join_requests jr").
		WithArgs(int64(7), nil).
		WillReturnRows(sqlmock.NewRows(cols))

	reqs, err := repo.ListByProject(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 0 {
		t.Errorf("len = %d, want 0", len(reqs))
	}
}

func TestListByUser(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	cols := append(append([]string{}, joinRequestCols...), "username", "project_name")
	mock.ExpectQuery("SELECT.*FROM join_requests jr.*WHERE jr.user_id").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(11), int64(2), int64(7), "rejected", time.Now(), time.Now(), "alice", "apollo"))

	reqs, err := repo.ListByUser(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 1 || reqs[0].Status != models.JoinRequestRejected {
		t.Errorf("reqs = %+v", reqs)
	}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

func TestUserStats(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	cols := []string{"requests_sent", "pending_outgoing", "projects_joined", "pending_incoming", "accepted_incoming"}
	mock.ExpectQuery("SELECT.*requests_sent.*pending_incoming").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(3), int64(1), int64(2), int64(4), int64(5)))

	stats, err := repo.UserStats(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := models.UserStats{RequestsSent: 3, PendingOutgoing: 1, ProjectsJoined: 2, PendingIncoming: 4, AcceptedIncoming: 5}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}
}

func TestProjectStats(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	cols := []string{"pending", "accepted", "rejected", "members"}
	mock.ExpectQuery("SELECT.*FILTER.*FROM join_requests").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(2), int64(3), int64(1), int64(4)))

	stats, err := repo.ProjectStats(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := models.ProjectStats{Pending: 2, Accepted: 3, Rejected: 1, Members: 4}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}
}

func TestUserStats_DBError(t *testing.T) {
	repo, mock := newJoinRequestRepo(t)
	mock.ExpectQuery("SELECT").WillReturnError(errDB)

	if _, err := repo.UserStats(context.Background(), 1); err == nil {
		t.Fatal("expected error, got nil")
	}
}
