package rest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/seatwise/seatwise/internal/domain"
)

// GetCSV issues an authenticated GET and parses the CSV body into
// header-keyed records. Empty bodies yield an empty slice, not an error.
func (c *Client) GetCSV(ctx context.Context, tokenKey, path string) ([]map[string]string, error) {
	payload, err := c.Get(ctx, tokenKey, path)
	if err != nil {
		return nil, err
	}

	records, err := ParseCSV(bytes.NewReader(payload))
	if err != nil {
		return nil, domain.Parse(c.name, "csv report is malformed", err)
	}

	return records, nil
}

// ParseCSV reads header-prefixed CSV into one map per row, keyed by column
// name. A UTF-8 BOM on the header is stripped. An empty input yields an
// empty slice.
func ParseCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	records := []map[string]string{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", len(records)+2, err)
		}

		record := make(map[string]string, len(header))
		for i, column := range header {
			record[column] = row[i]
		}
		records = append(records, record)
	}
}
