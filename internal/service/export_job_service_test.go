package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unihall/attendance-api/pkg/jobs"
	"github.com/unihall/attendance-api/pkg/storage"
)

func newExportFixture(t *testing.T) (*ExportJobService, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportJobService(store, signer, nil, ExportJobServiceConfig{Workers: 1}), dir
}

func TestExportArchiveAndDownload(t *testing.T) {
	svc, dir := newExportFixture(t)

	result := &ExportResult{
		Filename:    "CS101_attendance_2026-03-02.csv",
		ContentType: "text/csv",
		Data:        []byte("No,Student ID,Name,Status\n"),
	}

	archived, err := svc.Archive(result)
	require.Error(t, err, "archive requires started workers")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	archived, err = svc.Archive(result)
	require.NoError(t, err)
	assert.NotEmpty(t, archived.DownloadToken)
	assert.Equal(t, result.Filename, archived.Filename)

	// Workers persist asynchronously; wait for the file to land.
	path := filepath.Join(dir, archived.JobID, result.Filename)
	require.Eventually(t, func() bool {
		_, statErr := os.Stat(path)
		return statErr == nil
	}, 2*time.Second, 10*time.Millisecond)

	file, filename, err := svc.Open(archived.DownloadToken)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, result.Filename, filename)
}

func TestExportOpenRejectsForgedToken(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, _, err := svc.Open("not-a-valid.token")
	require.Error(t, err)
}

func TestExportArchiveRejectsEmptyPayload(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, err := svc.Archive(&ExportResult{Filename: "empty.csv"})
	require.Error(t, err)
}

func TestExportJobHandlerWritesFile(t *testing.T) {
	svc, dir := newExportFixture(t)

	err := svc.handle(context.Background(), jobs.Job{
		ID:      "job-1",
		Type:    "archive_export",
		Payload: archivePayload{RelPath: filepath.Join("job-1", "roster.csv"), Data: []byte("data")},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "job-1", "roster.csv"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(raw))
}
