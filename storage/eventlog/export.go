package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const exportBatchSize = MaxListLimit

type parquetRecord struct {
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seq        int64  `parquet:"name=seq, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	OfferID    string `parquet:"name=offer_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	DisputeID  string `parquet:"name=dispute_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet streams every record matching f to w as a snappy-compressed
// parquet file and returns the number of rows written. f.Limit is ignored.
func (s *Sink) ExportParquet(ctx context.Context, w io.Writer, f Filter) (int, error) {
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(w), new(parquetRecord), 1)
	if err != nil {
		return 0, fmt.Errorf("eventlog: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	page := f
	page.Limit = exportBatchSize
	for {
		records, err := s.List(ctx, page)
		if err != nil {
			_ = pw.WriteStop()
			return written, err
		}
		for i := range records {
			row, err := toParquet(&records[i])
			if err != nil {
				_ = pw.WriteStop()
				return written, err
			}
			if err := pw.Write(row); err != nil {
				_ = pw.WriteStop()
				return written, fmt.Errorf("eventlog: parquet write: %w", err)
			}
			written++
		}
		if len(records) < exportBatchSize {
			break
		}
		page.AfterSeq = records[len(records)-1].Seq
	}
	if err := pw.WriteStop(); err != nil {
		return written, fmt.Errorf("eventlog: parquet flush: %w", err)
	}
	return written, nil
}

func toParquet(rec *Record) (*parquetRecord, error) {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return nil, fmt.Errorf("eventlog: encode attributes of %d: %w", rec.Seq, err)
	}
	return &parquetRecord{
		ID:         rec.ID.String(),
		Seq:        rec.Seq,
		Type:       rec.Type,
		OfferID:    rec.OfferID,
		DisputeID:  rec.DisputeID,
		Attributes: string(attrs),
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}
