package privacy

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/geoaware/backend/internal/models"
	"github.com/jszwec/csvutil"
)

const (
	// ExportFilename is the attachment name of the CSV export
	ExportFilename = "privacy_experiment_data.csv"

	exportTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Summary aggregates every stored sample
type Summary struct {
	Count           int64   `gorm:"column:count" json:"count"`
	MeanErrorMeters float64 `gorm:"column:mean_error_meters" json:"meanErrorMeters"`
	MaxErrorMeters  float64 `gorm:"column:max_error_meters" json:"maxErrorMeters"`
	QoSRetainedRate float64 `gorm:"column:qos_retained_rate" json:"qosRetainedRate"`
}

// Summarize computes the aggregate over all logs. QoSRetainedRate is a
// percentage.
func (s *Simulator) Summarize(ctx context.Context) (Summary, error) {
	var out Summary
	err := s.db.WithContext(ctx).Model(&models.PrivacyLog{}).
		Select(`COUNT(*) AS count,
			COALESCE(AVG(error_meters), 0) AS mean_error_meters,
			COALESCE(MAX(error_meters), 0) AS max_error_meters,
			COALESCE(AVG(CASE WHEN qos_retained THEN 100.0 ELSE 0.0 END), 0) AS qos_retained_rate`).
		Scan(&out).Error
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize privacy logs: %w", err)
	}
	return out, nil
}

// decimal writes floats in plain notation
type decimal float64

func (d decimal) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(d), 'f', -1, 64)), nil
}

// bit writes booleans as 1 or 0
type bit bool

func (b bit) MarshalText() ([]byte, error) {
	if b {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

type exportRow struct {
	Timestamp   string  `csv:"Timestamp"`
	RealLat     decimal `csv:"RealLat"`
	RealLon     decimal `csv:"RealLon"`
	FakeLat     decimal `csv:"FakeLat"`
	FakeLon     decimal `csv:"FakeLon"`
	ErrorMeters decimal `csv:"ErrorMeters"`
	QoSRetained bit     `csv:"QoSRetained"`
}

func toExportRow(l models.PrivacyLog) exportRow {
	return exportRow{
		Timestamp:   l.Timestamp.UTC().Format(exportTimeLayout),
		RealLat:     decimal(l.RealLat),
		RealLon:     decimal(l.RealLon),
		FakeLat:     decimal(l.PerturbedLat),
		FakeLon:     decimal(l.PerturbedLon),
		ErrorMeters: decimal(l.ErrorMeters),
		QoSRetained: bit(l.QoSRetained),
	}
}

// Export writes every log as semicolon separated CSV in timestamp order.
// The header is written even when there are no logs.
func (s *Simulator) Export(ctx context.Context, w io.Writer) error {
	var logs []models.PrivacyLog
	if err := s.db.WithContext(ctx).Order("timestamp ASC").Find(&logs).Error; err != nil {
		return fmt.Errorf("failed to load privacy logs: %w", err)
	}
	return WriteCSV(w, logs)
}

// WriteCSV encodes logs in the export format
func WriteCSV(w io.Writer, logs []models.PrivacyLog) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(exportRow{}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, l := range logs {
		if err := enc.Encode(toExportRow(l)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Wipe deletes every stored log and returns how many were removed
func (s *Simulator) Wipe(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("1 = 1").Delete(&models.PrivacyLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to wipe privacy logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
