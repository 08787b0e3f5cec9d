package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// ExportRecord is the Parquet schema for a journal export: one row per
// signal, joined with its order outcome when one exists.
type ExportRecord struct {
	ID         string  `parquet:"id"`
	ReceivedAt int64   `parquet:"received_at,timestamp(millisecond)"` // Unix ms
	Channel    int64   `parquet:"channel"`
	Text       string  `parquet:"text"`
	Kind       string  `parquet:"kind"`
	Action     string  `parquet:"action"`
	Symbol     string  `parquet:"symbol"`
	Leg        string  `parquet:"leg"`
	Strike     float64 `parquet:"strike"`
	Price      float64 `parquet:"price"`
	Suppressed bool    `parquet:"suppressed"`
	HasResult  bool    `parquet:"has_result"`
	Retcode    int32   `parquet:"retcode"`
	OrderID    int64   `parquet:"order_id"`
	Volume     float64 `parquet:"volume"`
	FillPrice  float64 `parquet:"fill_price"`
	Comment    string  `parquet:"comment"`
}

// Export writes the newest journal entries (up to limit, zero for the default)
// to a Parquet file at path.
func (s *Store) Export(ctx context.Context, path string, limit int) (int, error) {
	entries, err := s.Recent(ctx, limit)
	if err != nil {
		return 0, err
	}

	records := make([]ExportRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, ExportRecord{
			ID:         e.ID,
			ReceivedAt: e.ReceivedAt.UnixMilli(),
			Channel:    e.Channel,
			Text:       e.Text,
			Kind:       e.Kind,
			Action:     e.Action,
			Symbol:     e.Symbol,
			Leg:        e.Leg,
			Strike:     e.Strike,
			Price:      e.Price,
			Suppressed: e.Suppressed,
			HasResult:  e.HasResult,
			Retcode:    int32(e.Retcode),
			OrderID:    e.OrderID,
			Volume:     e.Volume,
			FillPrice:  e.ResultPrice,
			Comment:    e.ResultComment,
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("creating export directory: %w", err)
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return 0, fmt.Errorf("writing parquet export: %w", err)
	}
	return len(records), nil
}

// ReadExport reads back a Parquet journal export.
func ReadExport(path string) ([]ExportRecord, error) {
	return parquet.ReadFile[ExportRecord](path)
}
