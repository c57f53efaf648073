package database

import (
	"context"
	"fmt"

	"linewatch/pkg/models"
)

func (db *DB) InsertSpeedTestResult(ctx context.Context, result *models.SpeedTestResult) error {
	_, err := db.NewInsert().
		Model(result).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error inserting speed test result: %v", err)
	}

	return nil
}

func (db *DB) InsertQuotaResult(ctx context.Context, result *models.QuotaResult) error {
	_, err := db.NewInsert().
		Model(result).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error inserting quota result: %v", err)
	}

	return nil
}

// LatestSpeedTestResult returns the newest measurement row for a line, or
// nil when the line has never been measured.
func (db *DB) LatestSpeedTestResult(ctx context.Context, lineID int64) (*models.SpeedTestResult, error) {
	var results []models.SpeedTestResult
	err := db.NewSelect().
		Model(&results).
		Where("line_id = ?", lineID).
		Order("time DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting latest speed test result: %v", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	return &results[0], nil
}

// LatestQuotaResult returns the newest quota row for a line, or nil when the
// line has never been scraped.
func (db *DB) LatestQuotaResult(ctx context.Context, lineID int64) (*models.QuotaResult, error) {
	var results []models.QuotaResult
	err := db.NewSelect().
		Model(&results).
		Where("line_id = ?", lineID).
		Order("time DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting latest quota result: %v", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	return &results[0], nil
}
