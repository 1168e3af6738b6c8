package postgres

import (
	"context"
	"fmt"
	"time"

	"example.com/healthsync/internal/domain"
)

// RangeFilter narrows read queries to a calendar date range. Nil bounds are
// open; Limit <= 0 falls back to a server-side default.
type RangeFilter struct {
	Start *time.Time
	End   *time.Time
	Limit int
}

func (f RangeFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// ActivityFilter adds activity-specific filters on top of the date range.
type ActivityFilter struct {
	RangeFilter
	Type   string
	Offset int
}

// ListActivities returns activities newest first.
func (r *Repository) ListActivities(ctx context.Context, f ActivityFilter) ([]domain.Activity, error) {
	query := `SELECT activity_id, activity_type, activity_name, start_time, duration_seconds, distance_meters,
            avg_hr, max_hr, avg_speed, max_speed, calories, cadence, vo2max, training_effect_aerobic,
            training_effect_anaerobic, elevation_gain, raw
        FROM activities WHERE 1=1`
	args := make([]any, 0, 5)

	if f.Start != nil {
		args = append(args, *f.Start)
		query += argClause(" AND start_time >= ", len(args))
	}
	if f.End != nil {
		args = append(args, f.End.AddDate(0, 0, 1))
		query += argClause(" AND start_time < ", len(args))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		query += argClause(" AND activity_type = ", len(args))
	}
	args = append(args, f.limit())
	query += argClause(" ORDER BY start_time DESC LIMIT ", len(args))
	args = append(args, f.Offset)
	query += argClause(" OFFSET ", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.ActivityType, &a.ActivityName, &a.StartTime, &a.DurationSeconds,
			&a.DistanceMeters, &a.AvgHR, &a.MaxHR, &a.AvgSpeed, &a.MaxSpeed, &a.Calories, &a.Cadence,
			&a.VO2Max, &a.TrainingEffectAerobic, &a.TrainingEffectAnaerobic, &a.ElevationGain, &a.Raw); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// ListSleep returns sleep summaries newest first.
func (r *Repository) ListSleep(ctx context.Context, f RangeFilter) ([]domain.Sleep, error) {
	query := `SELECT calendar_date, sleep_start, sleep_end, total_sleep_seconds, deep_seconds, light_seconds,
            rem_seconds, awake_seconds, sleep_score, avg_respiration, avg_spo2, raw
        FROM sleep WHERE 1=1`
	query, args := rangeClauses(query, "calendar_date", f)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.Sleep, 0)
	for rows.Next() {
		var s domain.Sleep
		if err := rows.Scan(&s.CalendarDate, &s.SleepStart, &s.SleepEnd, &s.TotalSleepSeconds, &s.DeepSeconds,
			&s.LightSeconds, &s.RemSeconds, &s.AwakeSeconds, &s.SleepScore, &s.AvgRespiration, &s.AvgSpO2, &s.Raw); err != nil {
			return nil, err
		}
		entries = append(entries, s)
	}
	return entries, rows.Err()
}

// ListDaily returns daily summaries newest first.
func (r *Repository) ListDaily(ctx context.Context, f RangeFilter) ([]domain.DailySummary, error) {
	query := `SELECT calendar_date, steps, total_distance_meters, active_calories, total_calories, resting_hr,
            max_hr, avg_stress, max_stress, body_battery_high, body_battery_low, floors_climbed,
            intensity_minutes, raw
        FROM daily_summary WHERE 1=1`
	query, args := rangeClauses(query, "calendar_date", f)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.DailySummary, 0)
	for rows.Next() {
		var d domain.DailySummary
		if err := rows.Scan(&d.CalendarDate, &d.Steps, &d.TotalDistanceMeters, &d.ActiveCalories, &d.TotalCalories,
			&d.RestingHR, &d.MaxHR, &d.AvgStress, &d.MaxStress, &d.BodyBatteryHigh, &d.BodyBatteryLow,
			&d.FloorsClimbed, &d.IntensityMinutes, &d.Raw); err != nil {
			return nil, err
		}
		entries = append(entries, d)
	}
	return entries, rows.Err()
}

// ListHeartRate returns heart rate summaries newest first.
func (r *Repository) ListHeartRate(ctx context.Context, f RangeFilter) ([]domain.HeartRate, error) {
	query := `SELECT calendar_date, resting_hr, max_hr, min_hr, raw FROM heart_rate WHERE 1=1`
	query, args := rangeClauses(query, "calendar_date", f)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.HeartRate, 0)
	for rows.Next() {
		var h domain.HeartRate
		if err := rows.Scan(&h.CalendarDate, &h.RestingHR, &h.MaxHR, &h.MinHR, &h.Raw); err != nil {
			return nil, err
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// ListBody returns body composition entries newest first.
func (r *Repository) ListBody(ctx context.Context, f RangeFilter) ([]domain.BodyComposition, error) {
	query := `SELECT calendar_date, weight_kg, bmi, body_fat_pct, muscle_mass_kg, bone_mass_kg, body_water_pct, raw
        FROM body_composition WHERE 1=1`
	query, args := rangeClauses(query, "calendar_date", f)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.BodyComposition, 0)
	for rows.Next() {
		var b domain.BodyComposition
		if err := rows.Scan(&b.CalendarDate, &b.WeightKg, &b.BMI, &b.BodyFatPct, &b.MuscleMassKg,
			&b.BoneMassKg, &b.BodyWaterPct, &b.Raw); err != nil {
			return nil, err
		}
		entries = append(entries, b)
	}
	return entries, rows.Err()
}

func rangeClauses(query, column string, f RangeFilter) (string, []any) {
	args := make([]any, 0, 3)
	if f.Start != nil {
		args = append(args, domain.DateOnly(*f.Start))
		query += argClause(" AND "+column+" >= ", len(args))
	}
	if f.End != nil {
		args = append(args, domain.DateOnly(*f.End))
		query += argClause(" AND "+column+" <= ", len(args))
	}
	args = append(args, f.limit())
	query += argClause(" ORDER BY "+column+" DESC LIMIT ", len(args))
	return query, args
}

func argClause(prefix string, n int) string {
	return fmt.Sprintf("%s$%d", prefix, n)
}
