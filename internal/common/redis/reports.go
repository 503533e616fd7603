package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ReportStore keeps job reports for a limited time so clients can fetch them by job ID
type ReportStore struct {
	client      *Client
	ttl         time.Duration
	compression string
	logger      *zap.Logger
}

// NewReportStore stores reports under the client's prefix. compression is one of
// CompressionNone, CompressionSnappy or CompressionLZ4.
func NewReportStore(client *Client, ttl time.Duration, compression string, logger *zap.Logger) *ReportStore {
	return &ReportStore{client: client, ttl: ttl, compression: compression, logger: logger}
}

// Save stores report as JSON under jobID, compressed when large enough
func (s *ReportStore) Save(ctx context.Context, jobID string, report interface{}) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	stored, err := compress(data, s.compression)
	if err != nil {
		return fmt.Errorf("compress report: %w", err)
	}
	if err := s.client.Set(ctx, s.client.ReportKey(jobID), stored, s.ttl); err != nil {
		return err
	}

	s.logger.Debug("Report stored",
		zap.String("job_id", jobID),
		zap.Int("bytes", len(data)),
		zap.Int("stored_bytes", len(stored)),
		zap.Duration("ttl", s.ttl))
	return nil
}

// Load decodes the report for jobID into dst. Returns false when it expired or never existed.
func (s *ReportStore) Load(ctx context.Context, jobID string, dst interface{}) (bool, error) {
	data, ok, err := s.client.Get(ctx, s.client.ReportKey(jobID))
	if err != nil || !ok {
		return false, err
	}
	raw, err := decompress([]byte(data))
	if err != nil {
		return false, fmt.Errorf("decode report %s: %w", jobID, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode report %s: %w", jobID, err)
	}
	return true, nil
}
