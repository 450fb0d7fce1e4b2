package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
)

const pqUniqueViolation = "23505"

const sessionColumns = `
		id,
		student_id,
		counselor_id,
		room_name,
		status,
		issue_details,
		created_at,
		accepted_at,
		ended_at,
		notes,
		feedback,
		rating`

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStore implements Store on top of database/sql and lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return db, nil
}

// Create a new pending session, claiming its counselor in the same transaction
func (r *PostgresStore) CreateSession(ctx context.Context, session *models.Session) error {
	const query = `
	INSERT INTO sessions (
		id,
		student_id,
		counselor_id,
		room_name,
		status,
		issue_details,
		created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin create session")
	}
	defer tx.Rollback()

	claimed, err := claimCounselor(ctx, tx, session.CounselorID, session.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrCounselorUnavailable
	}

	_, err = tx.ExecContext(
		ctx,
		query,
		session.ID,
		session.StudentID,
		session.CounselorID,
		session.RoomName,
		session.Status,
		session.IssueDetails,
		session.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			if pqErr.Constraint == "sessions_room_name_key" {
				return ErrDuplicateRoomName
			}
			return ErrLiveSessionExists
		}
		return errors.Wrap(err, "insert session")
	}

	return errors.Wrap(tx.Commit(), "commit create session")
}

// Get session by id
func (r *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `SELECT` + sessionColumns + `
	FROM sessions
	WHERE id = $1
	`
	return r.getOne(ctx, query, id)
}

// Get session by its signaling room
func (r *PostgresStore) GetSessionByRoom(ctx context.Context, roomName string) (*models.Session, error) {
	query := `SELECT` + sessionColumns + `
	FROM sessions
	WHERE room_name = $1
	`
	return r.getOne(ctx, query, roomName)
}

func (r *PostgresStore) FindLiveSessionByStudent(ctx context.Context, studentID uuid.UUID) (*models.Session, error) {
	query := `SELECT` + sessionColumns + `
	FROM sessions
	WHERE student_id = $1 AND status IN ('pending', 'active')
	LIMIT 1
	`
	return r.getOne(ctx, query, studentID)
}

func (r *PostgresStore) getOne(ctx context.Context, query string, arg any) (*models.Session, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select session")
	}
	return session, nil
}

// Conditionally move a session between states; terminal targets release the
// counselor inside the same transaction.
func (r *PostgresStore) TransitionSession(ctx context.Context, id uuid.UUID, from []models.SessionStatus, to models.SessionStatus, at time.Time) (*models.Session, error) {
	stamp := "accepted_at"
	if to.IsTerminal() {
		stamp = "ended_at"
	}
	query := fmt.Sprintf(`
	UPDATE sessions
	SET status = $1, %s = $2
	WHERE id = $3 AND status = ANY($4::text[])
	RETURNING`+sessionColumns, stamp)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transition")
	}
	defer tx.Rollback()

	session, err := scanSession(tx.QueryRowContext(ctx, query, to, at.UTC(), id, pq.Array(statusStrings(from))))
	if err == sql.ErrNoRows {
		tx.Rollback()
		current, getErr := r.GetSession(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return current, ErrTransitionConflict
	}
	if err != nil {
		return nil, errors.Wrap(err, "update session status")
	}

	if to.IsTerminal() {
		if _, err := releaseCounselor(ctx, tx, session.CounselorID, session.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit transition")
	}
	return session, nil
}

// Attach notes, feedback or rating to a completed session
func (r *PostgresStore) AttachOutcome(ctx context.Context, id uuid.UUID, outcome models.SessionOutcome) (*models.Session, error) {
	query := `
	UPDATE sessions
	SET
		notes = COALESCE($1, notes),
		feedback = COALESCE($2, feedback),
		rating = COALESCE($3, rating)
	WHERE id = $4 AND status = 'completed'
	RETURNING` + sessionColumns

	session, err := scanSession(r.db.QueryRowContext(ctx, query,
		nullString(outcome.Notes),
		nullString(outcome.Feedback),
		nullInt(outcome.Rating),
		id,
	))
	if err == sql.ErrNoRows {
		current, getErr := r.GetSession(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return current, ErrTransitionConflict
	}
	if err != nil {
		return nil, errors.Wrap(err, "attach outcome")
	}
	return session, nil
}

func (r *PostgresStore) ListStaleSessions(ctx context.Context, status models.SessionStatus, before time.Time) ([]*models.Session, error) {
	column := "created_at"
	if status == models.SessionStatusActive {
		column = "accepted_at"
	}
	query := fmt.Sprintf(`SELECT`+sessionColumns+`
	FROM sessions
	WHERE status = $1 AND %s < $2
	ORDER BY created_at
	`, column)

	rows, err := r.db.QueryContext(ctx, query, status, before.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "list stale sessions")
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan stale session")
		}
		out = append(out, session)
	}
	return out, errors.Wrap(rows.Err(), "iterate stale sessions")
}

func (r *PostgresStore) StudentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "check student")
	}
	return exists, nil
}

func (r *PostgresStore) ListAvailableCounselors(ctx context.Context, exclude []uuid.UUID, limit int) ([]uuid.UUID, error) {
	const query = `
	SELECT id
	FROM counselors
	WHERE is_available = TRUE AND NOT (id = ANY($1::uuid[]))
	ORDER BY updated_at
	LIMIT $2
	`

	skip := make([]string, 0, len(exclude))
	for _, id := range exclude {
		skip = append(skip, id.String())
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(skip), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list available counselors")
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan counselor id")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "iterate available counselors")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Claim a counselor with a single conditional update
func claimCounselor(ctx context.Context, db execer, counselorID, sessionID uuid.UUID) (bool, error) {
	const query = `
	UPDATE counselors
	SET is_available = FALSE, busy_session_id = $2, updated_at = NOW()
	WHERE id = $1 AND is_available = TRUE
	`

	res, err := db.ExecContext(ctx, query, counselorID, sessionID)
	if err != nil {
		return false, errors.Wrap(err, "claim counselor")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "claim counselor rows")
	}
	return n == 1, nil
}

// Release only while sessionID still holds the counselor
func releaseCounselor(ctx context.Context, db execer, counselorID, sessionID uuid.UUID) (bool, error) {
	const query = `
	UPDATE counselors
	SET is_available = TRUE, busy_session_id = NULL, updated_at = NOW()
	WHERE id = $1 AND busy_session_id = $2
	`

	res, err := db.ExecContext(ctx, query, counselorID, sessionID)
	if err != nil {
		return false, errors.Wrap(err, "release counselor")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "release counselor rows")
	}
	return n == 1, nil
}

func (r *PostgresStore) GetCounselor(ctx context.Context, id uuid.UUID) (*models.Counselor, error) {
	const query = `
	SELECT id, display_name, is_available, busy_session_id, updated_at
	FROM counselors
	WHERE id = $1
	`

	var (
		c    models.Counselor
		busy uuid.NullUUID
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.DisplayName, &c.IsAvailable, &busy, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCounselorNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select counselor")
	}
	if busy.Valid {
		c.BusySessionID = &busy.UUID
	}
	return &c, nil
}

func (r *PostgresStore) CountAvailable(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM counselors WHERE is_available = TRUE`

	var n int
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count available counselors")
	}
	return n, nil
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s          models.Session
		acceptedAt sql.NullTime
		endedAt    sql.NullTime
		notes      sql.NullString
		feedback   sql.NullString
		rating     sql.NullInt64
	)

	err := row.Scan(
		&s.ID,
		&s.StudentID,
		&s.CounselorID,
		&s.RoomName,
		&s.Status,
		&s.IssueDetails,
		&s.CreatedAt,
		&acceptedAt,
		&endedAt,
		&notes,
		&feedback,
		&rating,
	)
	if err != nil {
		return nil, err
	}

	if acceptedAt.Valid {
		t := acceptedAt.Time.UTC()
		s.AcceptedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		s.EndedAt = &t
	}
	if notes.Valid {
		s.Notes = &notes.String
	}
	if feedback.Valid {
		s.Feedback = &feedback.String
	}
	if rating.Valid {
		v := int(rating.Int64)
		s.Rating = &v
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

func statusStrings(statuses []models.SessionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
