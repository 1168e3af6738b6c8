// Package postgres provides Postgres-backed persistence for health records,
// sync checkpoints, journal entries, and outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthsync/internal/domain"
)

// Repository wraps a pgx pool. Batch writes are transactional: records,
// checkpoint advance, and the outbox row commit together or not at all.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Checkpoint loads the durable cursor for one stream, or nil if the stream
// has never synced.
func (r *Repository) Checkpoint(ctx context.Context, stream domain.StreamID) (*domain.SyncCheckpoint, error) {
	const query = `SELECT stream_id, last_synced_date, last_sync_at, status, error_message, updated_at
        FROM sync_log WHERE stream_id=$1`

	row := r.pool.QueryRow(ctx, query, string(stream))
	checkpoint, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return checkpoint, nil
}

// ListCheckpoints returns every stream's checkpoint ordered by stream ID.
func (r *Repository) ListCheckpoints(ctx context.Context) ([]domain.SyncCheckpoint, error) {
	const query = `SELECT stream_id, last_synced_date, last_sync_at, status, error_message, updated_at
        FROM sync_log ORDER BY stream_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checkpoints := make([]domain.SyncCheckpoint, 0)
	for rows.Next() {
		checkpoint, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, *checkpoint)
	}
	return checkpoints, rows.Err()
}

// SaveBatch upserts all records of one window and advances the checkpoint in
// a single transaction, recording a sync.batch_persisted outbox event.
func (r *Repository) SaveBatch(ctx context.Context, stream domain.StreamID, records []domain.Record, through time.Time) error {
	if len(records) == 0 {
		return errors.New("empty batch")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, record := range records {
		if err := upsertRecord(ctx, tx, record); err != nil {
			return fmt.Errorf("upserting %s %s: %w", stream, record.NaturalKey(), err)
		}
	}

	if err := advanceCheckpoint(ctx, tx, stream, through); err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, stream, "sync.batch_persisted", map[string]any{
		"stream":       stream,
		"through":      through.Format(domain.DateFormat),
		"record_count": len(records),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkProgress advances the checkpoint through an empty window so a quiet
// stream never re-probes the same range on the next run.
func (r *Repository) MarkProgress(ctx context.Context, stream domain.StreamID, through time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := advanceCheckpoint(ctx, tx, stream, through); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkCompleted finalizes a successful run. The checkpoint date is left
// wherever confirmed progress got to.
func (r *Repository) MarkCompleted(ctx context.Context, stream domain.StreamID, at time.Time) error {
	const stmt = `INSERT INTO sync_log (stream_id, status, last_sync_at, updated_at)
        VALUES ($1, 'done', $2, NOW())
        ON CONFLICT (stream_id) DO UPDATE SET
            status = 'done',
            last_sync_at = EXCLUDED.last_sync_at,
            error_message = NULL,
            updated_at = NOW()`

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, stmt, string(stream), at.UTC()); err != nil {
		return err
	}
	if err := insertOutbox(ctx, tx, stream, "sync.completed", map[string]any{
		"stream":       stream,
		"completed_at": at.UTC(),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkError records a terminal failure without touching the checkpoint date,
// so the next trigger resumes from the failed window.
func (r *Repository) MarkError(ctx context.Context, stream domain.StreamID, message string) error {
	const stmt = `INSERT INTO sync_log (stream_id, status, error_message, updated_at)
        VALUES ($1, 'error', $2, NOW())
        ON CONFLICT (stream_id) DO UPDATE SET
            status = 'error',
            error_message = EXCLUDED.error_message,
            updated_at = NOW()`

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, stmt, string(stream), message); err != nil {
		return err
	}
	if err := insertOutbox(ctx, tx, stream, "sync.failed", map[string]any{
		"stream": stream,
		"error":  message,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// advanceCheckpoint moves last_synced_date forward, never backward, and
// flips the row to syncing.
func advanceCheckpoint(ctx context.Context, tx pgx.Tx, stream domain.StreamID, through time.Time) error {
	const stmt = `INSERT INTO sync_log (stream_id, last_synced_date, status, updated_at)
        VALUES ($1, $2, 'syncing', NOW())
        ON CONFLICT (stream_id) DO UPDATE SET
            last_synced_date = GREATEST(COALESCE(sync_log.last_synced_date, EXCLUDED.last_synced_date), EXCLUDED.last_synced_date),
            status = 'syncing',
            error_message = NULL,
            updated_at = NOW()`

	_, err := tx.Exec(ctx, stmt, string(stream), domain.DateOnly(through))
	return err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, stream domain.StreamID, eventType string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (stream_id, event_type, payload) VALUES ($1, $2, $3)`
	_, err = tx.Exec(ctx, stmt, string(stream), eventType, body)
	return err
}

func upsertRecord(ctx context.Context, tx pgx.Tx, record domain.Record) error {
	switch rec := record.(type) {
	case domain.Activity:
		return upsertActivity(ctx, tx, rec)
	case domain.Sleep:
		return upsertSleep(ctx, tx, rec)
	case domain.DailySummary:
		return upsertDaily(ctx, tx, rec)
	case domain.HeartRate:
		return upsertHeartRate(ctx, tx, rec)
	case domain.BodyComposition:
		return upsertBody(ctx, tx, rec)
	default:
		return fmt.Errorf("unsupported record type %T", record)
	}
}

func upsertActivity(ctx context.Context, tx pgx.Tx, a domain.Activity) error {
	const stmt = `INSERT INTO activities (activity_id, activity_type, activity_name, start_time, duration_seconds,
            distance_meters, avg_hr, max_hr, avg_speed, max_speed, calories, cadence, vo2max,
            training_effect_aerobic, training_effect_anaerobic, elevation_gain, raw, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW())
        ON CONFLICT (activity_id) DO UPDATE SET
            activity_type = EXCLUDED.activity_type,
            activity_name = EXCLUDED.activity_name,
            start_time = EXCLUDED.start_time,
            duration_seconds = EXCLUDED.duration_seconds,
            distance_meters = EXCLUDED.distance_meters,
            avg_hr = EXCLUDED.avg_hr,
            max_hr = EXCLUDED.max_hr,
            avg_speed = EXCLUDED.avg_speed,
            max_speed = EXCLUDED.max_speed,
            calories = EXCLUDED.calories,
            cadence = EXCLUDED.cadence,
            vo2max = EXCLUDED.vo2max,
            training_effect_aerobic = EXCLUDED.training_effect_aerobic,
            training_effect_anaerobic = EXCLUDED.training_effect_anaerobic,
            elevation_gain = EXCLUDED.elevation_gain,
            raw = EXCLUDED.raw,
            updated_at = NOW()`

	_, err := tx.Exec(ctx, stmt, a.ID, a.ActivityType, a.ActivityName, a.StartTime, a.DurationSeconds,
		a.DistanceMeters, a.AvgHR, a.MaxHR, a.AvgSpeed, a.MaxSpeed, a.Calories, a.Cadence, a.VO2Max,
		a.TrainingEffectAerobic, a.TrainingEffectAnaerobic, a.ElevationGain, a.Raw)
	return err
}

func upsertSleep(ctx context.Context, tx pgx.Tx, s domain.Sleep) error {
	const stmt = `INSERT INTO sleep (calendar_date, sleep_start, sleep_end, total_sleep_seconds, deep_seconds,
            light_seconds, rem_seconds, awake_seconds, sleep_score, avg_respiration, avg_spo2, raw, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
        ON CONFLICT (calendar_date) DO UPDATE SET
            sleep_start = EXCLUDED.sleep_start,
            sleep_end = EXCLUDED.sleep_end,
            total_sleep_seconds = EXCLUDED.total_sleep_seconds,
            deep_seconds = EXCLUDED.deep_seconds,
            light_seconds = EXCLUDED.light_seconds,
            rem_seconds = EXCLUDED.rem_seconds,
            awake_seconds = EXCLUDED.awake_seconds,
            sleep_score = EXCLUDED.sleep_score,
            avg_respiration = EXCLUDED.avg_respiration,
            avg_spo2 = EXCLUDED.avg_spo2,
            raw = EXCLUDED.raw,
            updated_at = NOW()`

	_, err := tx.Exec(ctx, stmt, s.CalendarDate, s.SleepStart, s.SleepEnd, s.TotalSleepSeconds, s.DeepSeconds,
		s.LightSeconds, s.RemSeconds, s.AwakeSeconds, s.SleepScore, s.AvgRespiration, s.AvgSpO2, s.Raw)
	return err
}

func upsertDaily(ctx context.Context, tx pgx.Tx, d domain.DailySummary) error {
	const stmt = `INSERT INTO daily_summary (calendar_date, steps, total_distance_meters, active_calories,
            total_calories, resting_hr, max_hr, avg_stress, max_stress, body_battery_high, body_battery_low,
            floors_climbed, intensity_minutes, raw, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
        ON CONFLICT (calendar_date) DO UPDATE SET
            steps = EXCLUDED.steps,
            total_distance_meters = EXCLUDED.total_distance_meters,
            active_calories = EXCLUDED.active_calories,
            total_calories = EXCLUDED.total_calories,
            resting_hr = EXCLUDED.resting_hr,
            max_hr = EXCLUDED.max_hr,
            avg_stress = EXCLUDED.avg_stress,
            max_stress = EXCLUDED.max_stress,
            body_battery_high = EXCLUDED.body_battery_high,
            body_battery_low = EXCLUDED.body_battery_low,
            floors_climbed = EXCLUDED.floors_climbed,
            intensity_minutes = EXCLUDED.intensity_minutes,
            raw = EXCLUDED.raw,
            updated_at = NOW()`

	_, err := tx.Exec(ctx, stmt, d.CalendarDate, d.Steps, d.TotalDistanceMeters, d.ActiveCalories,
		d.TotalCalories, d.RestingHR, d.MaxHR, d.AvgStress, d.MaxStress, d.BodyBatteryHigh, d.BodyBatteryLow,
		d.FloorsClimbed, d.IntensityMinutes, d.Raw)
	return err
}

func upsertHeartRate(ctx context.Context, tx pgx.Tx, h domain.HeartRate) error {
	const stmt = `INSERT INTO heart_rate (calendar_date, resting_hr, max_hr, min_hr, raw, updated_at)
        VALUES ($1,$2,$3,$4,$5,NOW())
        ON CONFLICT (calendar_date) DO UPDATE SET
            resting_hr = EXCLUDED.resting_hr,
            max_hr = EXCLUDED.max_hr,
            min_hr = EXCLUDED.min_hr,
            raw = EXCLUDED.raw,
            updated_at = NOW()`

	_, err := tx.Exec(ctx, stmt, h.CalendarDate, h.RestingHR, h.MaxHR, h.MinHR, h.Raw)
	return err
}

func upsertBody(ctx context.Context, tx pgx.Tx, b domain.BodyComposition) error {
	const stmt = `INSERT INTO body_composition (calendar_date, weight_kg, bmi, body_fat_pct, muscle_mass_kg,
            bone_mass_kg, body_water_pct, raw, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
        ON CONFLICT (calendar_date) DO UPDATE SET
            weight_kg = EXCLUDED.weight_kg,
            bmi = EXCLUDED.bmi,
            body_fat_pct = EXCLUDED.body_fat_pct,
            muscle_mass_kg = EXCLUDED.muscle_mass_kg,
            bone_mass_kg = EXCLUDED.bone_mass_kg,
            body_water_pct = EXCLUDED.body_water_pct,
            raw = EXCLUDED.raw,
            updated_at = NOW()`

	_, err := tx.Exec(ctx, stmt, b.CalendarDate, b.WeightKg, b.BMI, b.BodyFatPct, b.MuscleMassKg,
		b.BoneMassKg, b.BodyWaterPct, b.Raw)
	return err
}

func scanCheckpoint(row pgx.Row) (*domain.SyncCheckpoint, error) {
	var (
		checkpoint domain.SyncCheckpoint
		streamID   string
		syncedDate *time.Time
		status     string
	)
	if err := row.Scan(&streamID, &syncedDate, &checkpoint.LastSyncAt, &status, &checkpoint.ErrorMessage, &checkpoint.UpdatedAt); err != nil {
		return nil, err
	}
	checkpoint.Stream = domain.StreamID(streamID)
	checkpoint.Status = domain.SyncStatus(status)
	if syncedDate != nil {
		checkpoint.LastSyncedDate = domain.DateOnly(*syncedDate)
	}
	return &checkpoint, nil
}
