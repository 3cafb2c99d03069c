package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Exporter defines the interface for exporting analytics data
type Exporter interface {
	Export(ctx context.Context, data *AggregatedData) error
	Flush(ctx context.Context) error
	Close() error
}

// HTTPExporter exports data to external HTTP endpoints
type HTTPExporter struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client

	mu        sync.Mutex
	buffer    []*AggregatedData
	batchSize int
}

func NewHTTPExporter(endpoint, apiKey string, batchSize int) *HTTPExporter {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &HTTPExporter{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		buffer:    make([]*AggregatedData, 0, batchSize),
		batchSize: batchSize,
	}
}

func (e *HTTPExporter) Export(ctx context.Context, data *AggregatedData) error {
	e.mu.Lock()
	e.buffer = append(e.buffer, data)
	full := len(e.buffer) >= e.batchSize
	e.mu.Unlock()

	if full {
		return e.Flush(ctx)
	}
	return nil
}

func (e *HTTPExporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.buffer) == 0 {
		return nil
	}

	payload, err := json.Marshal(e.buffer)
	if err != nil {
		return fmt.Errorf("failed to marshal analytics data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send analytics data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("analytics export failed with status %d: %s", resp.StatusCode, string(body))
	}

	// Clear buffer on successful export
	e.buffer = e.buffer[:0]
	return nil
}

func (e *HTTPExporter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Flush(ctx)
}

// LogExporter writes rollups to a structured logger.
type LogExporter struct {
	log *slog.Logger
}

func NewLogExporter(l *slog.Logger) *LogExporter {
	if l == nil {
		l = slog.Default()
	}
	return &LogExporter{log: l}
}

func (e *LogExporter) Export(_ context.Context, data *AggregatedData) error {
	e.log.Info("community rollup",
		"period", data.Period,
		"key", data.Key,
		"active_users", data.ActiveUsers,
		"reports", data.Reports,
		"points_awarded", data.PointsAwarded,
		"achievements_unlocked", data.AchievementsUnlocked)
	return nil
}

func (e *LogExporter) Flush(context.Context) error { return nil }

func (e *LogExporter) Close() error { return nil }

// MultiExporter combines multiple exporters
type MultiExporter struct {
	exporters []Exporter
}

func NewMultiExporter(exporters ...Exporter) *MultiExporter {
	return &MultiExporter{exporters: exporters}
}

// Export sends data to every exporter and joins their errors.
func (e *MultiExporter) Export(ctx context.Context, data *AggregatedData) error {
	var errs []error
	for _, exporter := range e.exporters {
		if err := exporter.Export(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("export via %T: %w", exporter, err))
		}
	}
	return errors.Join(errs...)
}

func (e *MultiExporter) Flush(ctx context.Context) error {
	var errs []error
	for _, exporter := range e.exporters {
		if err := exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %T: %w", exporter, err))
		}
	}
	return errors.Join(errs...)
}

func (e *MultiExporter) Close() error {
	var errs []error
	for _, exporter := range e.exporters {
		if err := exporter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExportRollups exports the daily and monthly rollups containing at and
// flushes the exporter. The scheduler runs it periodically.
func ExportRollups(ctx context.Context, metrics *CommunityMetrics, exporter Exporter, at time.Time) error {
	for _, period := range []AggregationPeriod{PeriodDaily, PeriodMonthly} {
		data, err := metrics.Rollup(period, at)
		if err != nil {
			return err
		}
		if err := exporter.Export(ctx, data); err != nil {
			return fmt.Errorf("export %s rollup: %w", period, err)
		}
	}
	return exporter.Flush(ctx)
}
