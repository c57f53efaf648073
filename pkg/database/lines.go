package database

import (
	"context"
	"fmt"

	"linewatch/pkg/models"
)

func (db *DB) UpsertLine(ctx context.Context, line *models.Line) error {
	_, err := db.NewInsert().
		Model(line).
		On("CONFLICT (name) DO UPDATE").
		Set("line_number = EXCLUDED.line_number").
		Set("description = EXCLUDED.description").
		Set("isp = EXCLUDED.isp").
		Set("ip_address = EXCLUDED.ip_address").
		Set("gateway_ip = EXCLUDED.gateway_ip").
		Set("transport = EXCLUDED.transport").
		Set("portal_username = EXCLUDED.portal_username").
		Set("portal_password = EXCLUDED.portal_password").
		Set("as_number = EXCLUDED.as_number").
		Set("as_org = EXCLUDED.as_org").
		Set("city = EXCLUDED.city").
		Set("region = EXCLUDED.region").
		Set("country = EXCLUDED.country").
		Set("updated_at = CURRENT_TIMESTAMP").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error upserting line: %v", err)
	}

	return nil
}

func (db *DB) GetAllLines(ctx context.Context) ([]models.Line, error) {
	var lines []models.Line
	err := db.NewSelect().
		Model(&lines).
		Order("name ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting lines: %v", err)
	}

	return lines, nil
}

func (db *DB) GetLineByName(ctx context.Context, name string) (*models.Line, error) {
	line := new(models.Line)
	err := db.NewSelect().
		Model(line).
		Where("name = ?", name).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting line %s: %v", name, err)
	}

	return line, nil
}
