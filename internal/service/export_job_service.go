package service

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unihall/attendance-api/pkg/errors"
	"github.com/unihall/attendance-api/pkg/jobs"
)

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type exportSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

// ExportJobServiceConfig tunes archived export handling.
type ExportJobServiceConfig struct {
	Workers   int
	Retention time.Duration
}

// ArchivedExport references a stored export reachable through a signed
// download token.
type ArchivedExport struct {
	JobID         string    `json:"job_id"`
	Filename      string    `json:"filename"`
	DownloadToken string    `json:"download_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ExportJobService persists rendered exports on disk through a worker
// queue and hands out signed download tokens for later retrieval.
type ExportJobService struct {
	storage exportStorage
	signer  exportSigner
	queue   *jobs.Queue
	logger  *zap.Logger
	config  ExportJobServiceConfig
}

type archivePayload struct {
	RelPath string
	Data    []byte
}

// NewExportJobService constructs an ExportJobService.
func NewExportJobService(storage exportStorage, signer exportSigner, logger *zap.Logger, cfg ExportJobServiceConfig) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}

	s := &ExportJobService{storage: storage, signer: signer, logger: logger, config: cfg}
	s.queue = jobs.NewQueue("export-archive", s.handle, jobs.QueueConfig{
		Workers: cfg.Workers,
		Logger:  logger,
	})
	return s
}

// Start begins queue workers. Must be called before Archive.
func (s *ExportJobService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains queue workers.
func (s *ExportJobService) Stop() {
	s.queue.Stop()
}

// Archive schedules the export for persistence and returns a signed
// download token. The token embeds the final path, so it resolves once
// the write completes.
func (s *ExportJobService) Archive(result *ExportResult) (*ArchivedExport, error) {
	if result == nil || len(result.Data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to archive")
	}

	jobID := uuid.NewString()
	relPath := filepath.Join(jobID, result.Filename)

	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to sign export download")
	}

	job := jobs.Job{
		ID:      jobID,
		Type:    "archive_export",
		Payload: archivePayload{RelPath: relPath, Data: result.Data},
	}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to schedule export archive")
	}

	return &ArchivedExport{
		JobID:         jobID,
		Filename:      result.Filename,
		DownloadToken: token,
		ExpiresAt:     expiresAt,
	}, nil
}

// Open resolves a signed download token to the stored file.
func (s *ExportJobService) Open(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, http.StatusForbidden, "invalid or expired download token")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, http.StatusNotFound, "export not found")
	}
	return file, filepath.Base(relPath), nil
}

// Cleanup removes archived exports older than the retention window.
func (s *ExportJobService) Cleanup() (int, error) {
	deleted, err := s.storage.CleanupOlderThan(s.config.Retention)
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.logger.Info("removed expired export archives", zap.Int("count", len(deleted)))
	}
	return len(deleted), nil
}

func (s *ExportJobService) handle(_ context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(archivePayload)
	if !ok {
		s.logger.Warn("unexpected export job payload", zap.String("job_id", job.ID))
		return nil
	}
	if _, err := s.storage.Save(payload.RelPath, payload.Data); err != nil {
		return err
	}
	s.logger.Debug("archived export", zap.String("job_id", job.ID), zap.String("path", payload.RelPath))
	return nil
}
