package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/sensorhub-core/internal/infrastructure/metrics"
	"github.com/nerrad567/sensorhub-core/internal/ingest"
	"github.com/nerrad567/sensorhub-core/internal/measurement"
)

// TimestampLayout is the format of timestamps in series tables (UTC).
const TimestampLayout = "2006-01-02 15:04:05"

// ErrDeviceRequired is returned when a device-scoped query has no device ID.
var ErrDeviceRequired = errors.New("query: device id is required")

// Reader is the subset of measurement.Store the service reads from.
type Reader interface {
	DistinctDevices(ctx context.Context) ([]string, error)
	DistinctCategories(ctx context.Context, deviceID string) ([]string, error)
	Series(ctx context.Context, deviceID, category string) ([]measurement.Point, error)
}

// Table is a series rendered for charting clients: a header row followed by
// one [timestamp, value] row per point.
type Table [][]any

// Service answers read queries over stored measurements.
type Service struct {
	store   Reader
	metrics *metrics.Metrics
}

// NewService creates a query service. m may be nil.
func NewService(store Reader, m *metrics.Metrics) *Service {
	return &Service{store: store, metrics: m}
}

// Devices returns every device with stored measurements, sorted.
func (s *Service) Devices(ctx context.Context) ([]string, error) {
	devices, err := s.store.DistinctDevices(ctx)
	s.metrics.RecordQuery("devices", err)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return devices, nil
}

// Categories returns the original category labels recorded for a device,
// sorted. An unknown device yields an empty list.
func (s *Service) Categories(ctx context.Context, deviceID string) ([]string, error) {
	if deviceID == "" {
		return nil, ErrDeviceRequired
	}
	categories, err := s.store.DistinctCategories(ctx, deviceID)
	s.metrics.RecordQuery("categories", err)
	if err != nil {
		return nil, fmt.Errorf("listing categories for %s: %w", deviceID, err)
	}
	return categories, nil
}

// Series returns a device's readings for a category as a table ordered by
// timestamp. The category may be given in any spelling that normalises to
// the stored key ("Temperature(C)", "temperaturec"). Unknown devices or
// categories yield the header row only.
func (s *Service) Series(ctx context.Context, deviceID, category string) (Table, error) {
	if deviceID == "" {
		return nil, ErrDeviceRequired
	}
	points, err := s.store.Series(ctx, deviceID, ingest.Normalize(category))
	s.metrics.RecordQuery("series", err)
	if err != nil {
		return nil, fmt.Errorf("reading series %s/%s: %w", deviceID, category, err)
	}

	table := make(Table, 0, len(points)+1)
	table = append(table, []any{"timestamp", "value"})
	for _, p := range points {
		table = append(table, []any{p.Timestamp.UTC().Format(TimestampLayout), p.Value})
	}
	return table, nil
}
