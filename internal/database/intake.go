package database

import (
	"context"
	"database/sql"
	"errors"

	"aqualog/internal/models"
)

const intakeColumns = `id, amount_ml, timestamp_ms, calendar_day, sync_id, is_synced`

// InsertIntake stores a new unsynced intake event and returns its id.
func (db *DB) InsertIntake(ctx context.Context, amountMl int, timestampMs int64, day string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO intake_events (amount_ml, timestamp_ms, calendar_day, is_synced)
		VALUES (?, ?, ?, 0)`, amountMl, timestampMs, day)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertSyncedIntake stores an event pulled from the backend. It reports false
// when a row with the same sync id already exists.
func (db *DB) InsertSyncedIntake(ctx context.Context, log models.RemoteHydrationLog) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO intake_events (amount_ml, timestamp_ms, calendar_day, sync_id, is_synced)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(sync_id) DO NOTHING`,
		log.AmountMl, log.TimestampMs, log.CalendarDay, log.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteIntake removes one event. It reports whether a row was deleted.
func (db *DB) DeleteIntake(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM intake_events WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteIntakesForDay removes every event of a calendar day.
func (db *DB) DeleteIntakesForDay(ctx context.Context, day string) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM intake_events WHERE calendar_day = ?`, day)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IntakesForDay returns the events of a day, newest first.
func (db *DB) IntakesForDay(ctx context.Context, day string) ([]models.IntakeEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+intakeColumns+`
		FROM intake_events
		WHERE calendar_day = ?
		ORDER BY timestamp_ms DESC, id DESC`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIntakes(rows)
}

// TotalForDay sums the amounts of a day; 0 when the day is empty.
func (db *DB) TotalForDay(ctx context.Context, day string) (int, error) {
	var total int
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_ml), 0) FROM intake_events WHERE calendar_day = ?`, day).Scan(&total)
	return total, err
}

// LastIntakeForDay returns the most recent event of a day, or nil.
func (db *DB) LastIntakeForDay(ctx context.Context, day string) (*models.IntakeEvent, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+intakeColumns+`
		FROM intake_events
		WHERE calendar_day = ?
		ORDER BY timestamp_ms DESC, id DESC
		LIMIT 1`, day)

	e, err := scanIntake(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// DailyTotals returns per-day sums for days in [start, end] that have events,
// ascending by day.
func (db *DB) DailyTotals(ctx context.Context, start, end string) ([]models.DailyTotal, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT calendar_day, SUM(amount_ml)
		FROM intake_events
		WHERE calendar_day BETWEEN ? AND ?
		GROUP BY calendar_day
		ORDER BY calendar_day ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTotals(rows)
}

// DaysMeetingGoal returns the days whose total reached goalMl, newest first.
func (db *DB) DaysMeetingGoal(ctx context.Context, goalMl int) ([]models.DailyTotal, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT calendar_day, SUM(amount_ml) AS total
		FROM intake_events
		GROUP BY calendar_day
		HAVING total >= ?
		ORDER BY calendar_day DESC`, goalMl)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTotals(rows)
}

// UnsyncedIntakes returns events not yet pushed to the backend, oldest first.
func (db *DB) UnsyncedIntakes(ctx context.Context) ([]models.IntakeEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+intakeColumns+`
		FROM intake_events
		WHERE is_synced = 0
		ORDER BY timestamp_ms ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIntakes(rows)
}

// MarkIntakeSynced attaches the remote id to an unsynced event. Already synced
// rows are never reassigned; the method reports whether a row changed.
func (db *DB) MarkIntakeSynced(ctx context.Context, id int64, remoteID string) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE intake_events SET is_synced = 1, sync_id = ?
		WHERE id = ? AND is_synced = 0`, remoteID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoteIDs returns every sync id present locally.
func (db *DB) RemoteIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, `SELECT sync_id FROM intake_events WHERE sync_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntake(row rowScanner) (models.IntakeEvent, error) {
	var (
		e      models.IntakeEvent
		syncID sql.NullString
	)
	if err := row.Scan(&e.ID, &e.AmountMl, &e.TimestampMs, &e.CalendarDay, &syncID, &e.Synced); err != nil {
		return models.IntakeEvent{}, err
	}
	if syncID.Valid {
		e.RemoteID = syncID.String
	}
	return e, nil
}

func scanIntakes(rows *sql.Rows) ([]models.IntakeEvent, error) {
	events := []models.IntakeEvent{}
	for rows.Next() {
		e, err := scanIntake(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanTotals(rows *sql.Rows) ([]models.DailyTotal, error) {
	totals := []models.DailyTotal{}
	for rows.Next() {
		var t models.DailyTotal
		if err := rows.Scan(&t.Day, &t.TotalMl); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
