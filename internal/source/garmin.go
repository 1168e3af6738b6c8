package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"example.com/healthsync/internal/domain"
)

// GarminConfig holds connection parameters for the Garmin Connect API.
type GarminConfig struct {
	BaseURL      string
	Token        string
	FetchTimeout time.Duration
}

// GarminClient implements Client against the Garmin Connect REST API.
type GarminClient struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewGarminClient constructs a GarminClient.
func NewGarminClient(cfg GarminConfig) *GarminClient {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GarminClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// FetchDay queries the per-stream endpoint for a single calendar day.
func (c *GarminClient) FetchDay(ctx context.Context, stream domain.StreamID, day time.Time) ([]domain.Record, error) {
	date := day.Format(domain.DateFormat)
	switch stream {
	case domain.StreamActivities:
		return c.fetchActivities(ctx, date)
	case domain.StreamSleep:
		return c.fetchSleep(ctx, day, date)
	case domain.StreamDaily:
		return c.fetchDaily(ctx, day, date)
	case domain.StreamHeartRate:
		return c.fetchHeartRate(ctx, day, date)
	case domain.StreamBody:
		return c.fetchBody(ctx, date)
	default:
		return nil, fmt.Errorf("%w: unknown stream %q", ErrPermanent, stream)
	}
}

func (c *GarminClient) fetchActivities(ctx context.Context, date string) ([]domain.Record, error) {
	query := url.Values{"startDate": {date}, "endDate": {date}, "limit": {"100"}}
	body, err := c.get(ctx, "/activitylist-service/activities/search/activities", query)
	if err != nil {
		return nil, err
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("%w: decoding activities: %v", ErrTransient, err)
	}

	records := make([]domain.Record, 0, len(entries))
	for _, raw := range entries {
		var a garminActivity
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("%w: decoding activity: %v", ErrTransient, err)
		}
		started, err := time.Parse("2006-01-02 15:04:05", a.StartTimeLocal)
		if err != nil {
			continue
		}
		record := domain.Activity{
			ID:                      a.ActivityID,
			ActivityName:            a.ActivityName,
			StartTime:               started,
			DurationSeconds:         a.Duration,
			DistanceMeters:          a.Distance,
			AvgHR:                   a.AverageHR,
			MaxHR:                   a.MaxHR,
			AvgSpeed:                a.AverageSpeed,
			MaxSpeed:                a.MaxSpeed,
			Calories:                a.Calories,
			VO2Max:                  a.VO2MaxValue,
			TrainingEffectAerobic:   a.AerobicTrainingEffect,
			TrainingEffectAnaerobic: a.AnaerobicTrainingEffect,
			ElevationGain:           a.ElevationGain,
			Raw:                     append(json.RawMessage(nil), raw...),
		}
		if a.ActivityType != nil && a.ActivityType.TypeKey != "" {
			record.ActivityType = &a.ActivityType.TypeKey
		}
		if a.AverageRunningCadence != nil {
			record.Cadence = a.AverageRunningCadence
		} else if a.AverageBikingCadence != nil {
			record.Cadence = a.AverageBikingCadence
		}
		records = append(records, record)
	}
	return records, nil
}

func (c *GarminClient) fetchSleep(ctx context.Context, day time.Time, date string) ([]domain.Record, error) {
	body, err := c.get(ctx, "/wellness-service/wellness/dailySleepData", url.Values{"date": {date}})
	if err != nil {
		return nil, err
	}

	var payload garminSleep
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding sleep: %v", ErrTransient, err)
	}
	if payload.DailySleepDTO == nil {
		return nil, nil
	}

	dto := payload.DailySleepDTO
	record := domain.Sleep{
		CalendarDate:      domain.DateOnly(day),
		TotalSleepSeconds: dto.SleepTimeSeconds,
		DeepSeconds:       dto.DeepSleepSeconds,
		LightSeconds:      dto.LightSleepSeconds,
		RemSeconds:        dto.RemSleepSeconds,
		AwakeSeconds:      dto.AwakeSleepSeconds,
		AvgRespiration:    dto.AverageRespiration,
		AvgSpO2:           dto.AverageSpO2Value,
		Raw:               append(json.RawMessage(nil), body...),
	}
	if dto.SleepStartTimestampLocal != nil {
		t := time.UnixMilli(*dto.SleepStartTimestampLocal).UTC()
		record.SleepStart = &t
	}
	if dto.SleepEndTimestampLocal != nil {
		t := time.UnixMilli(*dto.SleepEndTimestampLocal).UTC()
		record.SleepEnd = &t
	}
	if payload.SleepScores != nil && payload.SleepScores.Overall != nil {
		record.SleepScore = payload.SleepScores.Overall.Value
	}
	return []domain.Record{record}, nil
}

func (c *GarminClient) fetchDaily(ctx context.Context, day time.Time, date string) ([]domain.Record, error) {
	body, err := c.get(ctx, "/usersummary-service/usersummary/daily", url.Values{"calendarDate": {date}})
	if err != nil {
		return nil, err
	}

	var d garminDaily
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("%w: decoding daily summary: %v", ErrTransient, err)
	}
	if d.TotalSteps == nil && d.RestingHeartRate == nil && d.TotalKilocalories == nil {
		return nil, nil
	}

	record := domain.DailySummary{
		CalendarDate:        domain.DateOnly(day),
		Steps:               d.TotalSteps,
		TotalDistanceMeters: d.TotalDistanceMeters,
		ActiveCalories:      d.ActiveKilocalories,
		TotalCalories:       d.TotalKilocalories,
		RestingHR:           d.RestingHeartRate,
		MaxHR:               d.MaxHeartRate,
		AvgStress:           d.AverageStressLevel,
		MaxStress:           d.MaxStressLevel,
		BodyBatteryHigh:     d.BodyBatteryChargedValue,
		BodyBatteryLow:      d.BodyBatteryDrainedValue,
		FloorsClimbed:       d.FloorsAscended,
		Raw:                 append(json.RawMessage(nil), body...),
	}
	if d.ModerateIntensityMinutes != nil {
		total := *d.ModerateIntensityMinutes
		if d.VigorousIntensityMinutes != nil {
			total += *d.VigorousIntensityMinutes
		}
		record.IntensityMinutes = &total
	}
	return []domain.Record{record}, nil
}

func (c *GarminClient) fetchHeartRate(ctx context.Context, day time.Time, date string) ([]domain.Record, error) {
	body, err := c.get(ctx, "/wellness-service/wellness/dailyHeartRate", url.Values{"date": {date}})
	if err != nil {
		return nil, err
	}

	var hr garminHeartRate
	if err := json.Unmarshal(body, &hr); err != nil {
		return nil, fmt.Errorf("%w: decoding heart rate: %v", ErrTransient, err)
	}
	if hr.RestingHeartRate == nil && hr.MaxHeartRate == nil {
		return nil, nil
	}

	return []domain.Record{domain.HeartRate{
		CalendarDate: domain.DateOnly(day),
		RestingHR:    hr.RestingHeartRate,
		MaxHR:        hr.MaxHeartRate,
		MinHR:        hr.MinHeartRate,
		Raw:          append(json.RawMessage(nil), body...),
	}}, nil
}

func (c *GarminClient) fetchBody(ctx context.Context, date string) ([]domain.Record, error) {
	query := url.Values{"startDate": {date}, "endDate": {date}}
	body, err := c.get(ctx, "/weight-service/weight/dateRange", query)
	if err != nil {
		return nil, err
	}

	var payload garminBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding body composition: %v", ErrTransient, err)
	}

	records := make([]domain.Record, 0, len(payload.DateWeightList))
	for _, raw := range payload.DateWeightList {
		var entry garminWeightEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("%w: decoding weight entry: %v", ErrTransient, err)
		}
		calDate, err := time.Parse(domain.DateFormat, entry.CalendarDate)
		if err != nil {
			continue
		}
		record := domain.BodyComposition{
			CalendarDate: domain.DateOnly(calDate),
			BMI:          entry.BMI,
			BodyFatPct:   entry.BodyFat,
			BodyWaterPct: entry.BodyWater,
			Raw:          append(json.RawMessage(nil), raw...),
		}
		// Garmin reports masses in grams.
		record.WeightKg = gramsToKg(entry.Weight)
		record.MuscleMassKg = gramsToKg(entry.MuscleMass)
		record.BoneMassKg = gramsToKg(entry.BoneMass)
		records = append(records, record)
	}
	return records, nil
}

func (c *GarminClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d from %s", ErrPermanent, resp.StatusCode, path)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d from %s", ErrTransient, resp.StatusCode, path)
	default:
		return nil, fmt.Errorf("%w: status %d from %s", ErrPermanent, resp.StatusCode, path)
	}
}

func gramsToKg(grams *float64) *float64 {
	if grams == nil {
		return nil
	}
	kg := *grams / 1000.0
	return &kg
}

type garminActivity struct {
	ActivityID              int64               `json:"activityId"`
	ActivityName            *string             `json:"activityName"`
	ActivityType            *garminActivityType `json:"activityType"`
	StartTimeLocal          string              `json:"startTimeLocal"`
	Duration                *float64            `json:"duration"`
	Distance                *float64            `json:"distance"`
	AverageHR               *int                `json:"averageHR"`
	MaxHR                   *int                `json:"maxHR"`
	AverageSpeed            *float64            `json:"averageSpeed"`
	MaxSpeed                *float64            `json:"maxSpeed"`
	Calories                *float64            `json:"calories"`
	AverageRunningCadence   *float64            `json:"averageRunningCadenceInStepsPerMinute"`
	AverageBikingCadence    *float64            `json:"averageBikingCadenceInRevPerMinute"`
	VO2MaxValue             *float64            `json:"vO2MaxValue"`
	AerobicTrainingEffect   *float64            `json:"aerobicTrainingEffect"`
	AnaerobicTrainingEffect *float64            `json:"anaerobicTrainingEffect"`
	ElevationGain           *float64            `json:"elevationGain"`
}

type garminActivityType struct {
	TypeKey string `json:"typeKey"`
}

type garminSleep struct {
	DailySleepDTO *garminSleepDTO    `json:"dailySleepDTO"`
	SleepScores   *garminSleepScores `json:"sleepScores"`
}

type garminSleepDTO struct {
	SleepTimeSeconds         *int     `json:"sleepTimeSeconds"`
	DeepSleepSeconds         *int     `json:"deepSleepSeconds"`
	LightSleepSeconds        *int     `json:"lightSleepSeconds"`
	RemSleepSeconds          *int     `json:"remSleepSeconds"`
	AwakeSleepSeconds        *int     `json:"awakeSleepSeconds"`
	SleepStartTimestampLocal *int64   `json:"sleepStartTimestampLocal"`
	SleepEndTimestampLocal   *int64   `json:"sleepEndTimestampLocal"`
	AverageRespiration       *float64 `json:"averageRespiration"`
	AverageSpO2Value         *float64 `json:"averageSpO2Value"`
}

type garminSleepScores struct {
	Overall *garminSleepScore `json:"overall"`
}

type garminSleepScore struct {
	Value *int `json:"value"`
}

type garminDaily struct {
	TotalSteps               *int     `json:"totalSteps"`
	TotalDistanceMeters      *float64 `json:"totalDistanceMeters"`
	ActiveKilocalories       *float64 `json:"activeKilocalories"`
	TotalKilocalories        *float64 `json:"totalKilocalories"`
	RestingHeartRate         *int     `json:"restingHeartRate"`
	MaxHeartRate             *int     `json:"maxHeartRate"`
	AverageStressLevel       *int     `json:"averageStressLevel"`
	MaxStressLevel           *int     `json:"maxStressLevel"`
	BodyBatteryChargedValue  *int     `json:"bodyBatteryChargedValue"`
	BodyBatteryDrainedValue  *int     `json:"bodyBatteryDrainedValue"`
	FloorsAscended           *int     `json:"floorsAscended"`
	ModerateIntensityMinutes *int     `json:"moderateIntensityMinutes"`
	VigorousIntensityMinutes *int     `json:"vigorousIntensityMinutes"`
}

type garminHeartRate struct {
	RestingHeartRate *int `json:"restingHeartRate"`
	MaxHeartRate     *int `json:"maxHeartRate"`
	MinHeartRate     *int `json:"minHeartRate"`
}

type garminBody struct {
	DateWeightList []json.RawMessage `json:"dateWeightList"`
}

type garminWeightEntry struct {
	CalendarDate string   `json:"calendarDate"`
	Weight       *float64 `json:"weight"`
	BMI          *float64 `json:"bmi"`
	BodyFat      *float64 `json:"bodyFat"`
	MuscleMass   *float64 `json:"muscleMass"`
	BoneMass     *float64 `json:"boneMass"`
	BodyWater    *float64 `json:"bodyWater"`
}
