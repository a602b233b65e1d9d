package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seq        int64  `parquet:"name=seq, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	FlightKey  string `parquet:"name=flight_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every archived event matching filter to path in
// sequence order and returns the number of rows written. filter.Limit sets the
// page size used while reading the archive.
func (s *Store) ExportParquet(ctx context.Context, path string, filter Filter) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("eventlog: store not configured")
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("eventlog: create parquet: %w", err)
	}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(file), new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("eventlog: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	page := filter
	if page.Limit <= 0 || page.Limit > MaxLimit {
		page.Limit = MaxLimit
	}
	written := 0
	for {
		entries, err := s.List(ctx, page)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for _, entry := range entries {
			row, err := toParquetRow(entry)
			if err == nil {
				err = pw.Write(row)
			}
			if err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("eventlog: parquet write: %w", err)
			}
			written++
		}
		if len(entries) < page.Limit {
			break
		}
		page.AfterSeq = entries[len(entries)-1].Seq
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("eventlog: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("eventlog: close parquet file: %w", err)
	}
	return written, nil
}

func toParquetRow(entry Entry) (*parquetRow, error) {
	row := &parquetRow{
		ID:        entry.ID.String(),
		Seq:       int64(entry.Seq),
		CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339),
	}
	if entry.Event != nil {
		row.Type = entry.Event.Type
		row.FlightKey = entry.Event.Attributes["flightKey"]
		attrs, err := json.Marshal(entry.Event.Attributes)
		if err != nil {
			return nil, err
		}
		row.Attributes = string(attrs)
	}
	return row, nil
}
