// Package lines handles registering monitored lines from a CSV file.
package lines

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"linewatch/pkg/database"
	"linewatch/pkg/ipinfo"
	"linewatch/pkg/models"
)

// Columns: name, line_number, isp, ip_address, gateway_ip, transport,
// portal_username, portal_password, description. A header row is detected
// and skipped.
const expectedColumns = 9

func AddLinesFromFile(db *database.DB, resolver *ipinfo.Resolver, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = expectedColumns
	reader.TrimLeadingSpace = true

	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading file: %v", err)
		}

		if first {
			first = false
			if strings.EqualFold(record[0], "name") {
				continue
			}
		}

		line, err := parseRecord(record)
		if err != nil {
			slog.Error("Error parsing line record", "record", record[0], "error", err)
			continue
		}

		slog.Debug("Adding line", "line", line.Name)

		if line.IPAddress != "" {
			ipInfo, err := resolver.GetIPInfo(line.IPAddress)
			if err != nil {
				slog.Warn("Error getting IP info", "ip", line.IPAddress, "error", err)
			} else {
				ipinfo.UpdateLineWithIPInfo(&line, ipInfo)
			}
		}

		err = db.UpsertLine(context.Background(), &line)
		if err != nil {
			slog.Error("Error upserting line", "line", line.Name, "error", err)
		} else {
			slog.Debug("Line upserted successfully", "line", line.Name)
		}
	}

	return nil
}

func parseRecord(record []string) (models.Line, error) {
	if record[0] == "" {
		return models.Line{}, fmt.Errorf("line name is required")
	}
	if record[2] == "" {
		return models.Line{}, fmt.Errorf("ISP is required for line %s", record[0])
	}

	return models.Line{
		Name:           record[0],
		LineNumber:     record[1],
		ISP:            record[2],
		IPAddress:      record[3],
		GatewayIP:      record[4],
		Transport:      record[5],
		PortalUsername: record[6],
		PortalPassword: record[7],
		Description:    record[8],
	}, nil
}
