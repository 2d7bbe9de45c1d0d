package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	Position     int64  `parquet:"name=position, type=INT64"`
	Sequence     int64  `parquet:"name=sequence, type=INT64"`
	Type         string `parquet:"name=type, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Holder       string `parquet:"name=holder, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Counterparty string `parquet:"name=counterparty, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Attributes   string `parquet:"name=attributes, type=UTF8"`
	Timestamp    int64  `parquet:"name=timestamp, type=INT64"`
	Digest       string `parquet:"name=digest, type=UTF8"`
}

// ExportParquet writes every event matching filter to a snappy-compressed
// parquet file at path and returns the number of rows written. filter.Limit
// is ignored; the archive is paged through in full.
func (s *Store) ExportParquet(ctx context.Context, path string, filter Filter) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("archive: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("archive: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	page := filter
	page.Limit = maxQueryLimit
	for {
		rows, err := s.Query(ctx, page)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for _, rec := range rows {
			if err := pw.Write(parquetRow{
				Position:     int64(rec.Position),
				Sequence:     int64(rec.Sequence),
				Type:         rec.Type,
				Holder:       rec.Holder,
				Counterparty: rec.Counterparty,
				Attributes:   rec.Attributes,
				Timestamp:    rec.Timestamp,
				Digest:       rec.Digest,
			}); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("archive: parquet write: %w", err)
			}
			written++
			page.After = rec.Position
		}
		if len(rows) < page.Limit {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("archive: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("archive: close parquet file: %w", err)
	}
	return written, nil
}
