package meetings

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbusmeet/backend/internal/models"
	"github.com/nimbusmeet/backend/internal/worker"
)

const meetingColumns = `id, meeting_name, topic, status, started_at, ended_at, duration_seconds,
	actually_happened, COALESCE(recording_status,''), COALESCE(recording_url,''), created_at, updated_at`

// Repository handles meeting records and participation bookkeeping.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a meetings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanMeeting(row pgx.Row) (*models.Meeting, error) {
	var m models.Meeting
	err := row.Scan(&m.ID, &m.MeetingName, &m.Topic, &m.Status, &m.StartedAt, &m.EndedAt,
		&m.DurationSeconds, &m.ActuallyHappened, &m.RecordingStatus, &m.RecordingURL,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByName returns the meeting record for a durable meeting name, or nil when
// no such meeting exists.
func (r *Repository) GetByName(ctx context.Context, name string) (*models.Meeting, error) {
	m, err := scanMeeting(r.pool.QueryRow(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE meeting_name = $1`, name))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// Join records a participant joining. The meeting row is created on first join
// and marked live; started_at is set once and never moved.
func (r *Repository) Join(ctx context.Context, meetingName, topic, participantID, displayName string) (*models.Meeting, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := scanMeeting(tx.QueryRow(ctx,
		`INSERT INTO meetings (meeting_name, topic, status, started_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (meeting_name) DO UPDATE
		 SET status = $3,
		     topic = CASE WHEN meetings.topic = '' THEN EXCLUDED.topic ELSE meetings.topic END,
		     started_at = COALESCE(meetings.started_at, NOW()),
		     updated_at = NOW()
		 RETURNING `+meetingColumns,
		meetingName, topic, models.MeetingStatusLive))
	if err != nil {
		return nil, fmt.Errorf("upsert meeting: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO meeting_participants (meeting_id, participant_id, display_name, joined_at)
		 VALUES ($1, $2, $3, NOW())`,
		m.ID, participantID, displayName)
	if err != nil {
		return nil, fmt.Errorf("insert participant: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

// Leave closes the participant's most recent open session in the meeting and
// derives their attended seconds. Leaving a meeting one never joined is a
// no-op reported by the returned count.
func (r *Repository) Leave(ctx context.Context, meetingName, participantID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE meeting_participants p
		 SET left_at = NOW(),
		     attended_seconds = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - p.joined_at))::BIGINT)
		 FROM (
		     SELECT mp.id FROM meeting_participants mp
		     JOIN meetings m ON m.id = mp.meeting_id
		     WHERE m.meeting_name = $1 AND mp.participant_id = $2 AND mp.left_at IS NULL
		     ORDER BY mp.joined_at DESC LIMIT 1
		 ) AS open
		 WHERE p.id = open.id`,
		meetingName, participantID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// End closes the meeting: open participant sessions are closed, the duration
// is derived from started_at, and the actually-happened flag is settled. The
// whole transition runs in one transaction so a concurrent recording
// reconciliation cannot observe a half-ended meeting.
func (r *Repository) End(ctx context.Context, meetingName string) (*models.Meeting, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := scanMeeting(tx.QueryRow(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE meeting_name = $1 FOR UPDATE`, meetingName))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lock meeting: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE meeting_participants
		 SET left_at = NOW(),
		     attended_seconds = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - joined_at))::BIGINT)
		 WHERE meeting_id = $1 AND left_at IS NULL`, m.ID)
	if err != nil {
		return nil, fmt.Errorf("close participants: %w", err)
	}

	var joins int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM meeting_participants WHERE meeting_id = $1`, m.ID).Scan(&joins); err != nil {
		return nil, fmt.Errorf("count participants: %w", err)
	}

	now := time.Now().UTC()
	endedAt := &now
	duration := DurationSeconds(m.StartedAt, endedAt)
	m, err = scanMeeting(tx.QueryRow(ctx,
		`UPDATE meetings
		 SET status = $1, ended_at = NOW(), duration_seconds = $2, actually_happened = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING `+meetingColumns,
		models.MeetingStatusEnded, duration, Happened(joins, duration), m.ID))
	if err != nil {
		return nil, fmt.Errorf("end meeting: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

// ListParticipants returns the meeting's attendance rows, newest join first.
func (r *Repository) ListParticipants(ctx context.Context, meetingName string) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT mp.id, mp.meeting_id, mp.participant_id, mp.display_name, mp.joined_at, mp.left_at, mp.attended_seconds
		 FROM meeting_participants mp
		 JOIN meetings m ON m.id = mp.meeting_id
		 WHERE m.meeting_name = $1
		 ORDER BY mp.joined_at DESC`, meetingName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.MeetingID, &p.ParticipantID, &p.DisplayName, &p.JoinedAt, &p.LeftAt, &p.AttendedSeconds); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// ReconcileRecording sets the meeting's recording status and URL in a single
// atomic update, keyed by the durable meeting name. Implements the transfer
// worker's Reconciler.
func (r *Repository) ReconcileRecording(ctx context.Context, meetingName, status, recordingURL string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE meetings SET recording_status = $1, recording_url = $2, updated_at = NOW()
		 WHERE meeting_name = $3`,
		status, recordingURL, meetingName)
	if err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return worker.ErrMeetingNotFound
	}
	return nil
}

var _ worker.Reconciler = (*Repository)(nil)
