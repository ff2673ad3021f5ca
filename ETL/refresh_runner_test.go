package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/workflow_analytics/ETL/config"
	"github.com/LilVoxy/workflow_analytics/ETL/extractors"
	"github.com/LilVoxy/workflow_analytics/ETL/load"
	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/powerbi"
	"github.com/LilVoxy/workflow_analytics/ETL/transform"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
	"github.com/LilVoxy/workflow_analytics/processor"
	"github.com/LilVoxy/workflow_analytics/websocket"
)

type journalEntry struct {
	status  string
	result  models.RefreshRunResult
	failure models.RefreshRunFailure
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []journalEntry
}

func (j *memoryJournal) CreateLogEntry(time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, journalEntry{status: models.RunStatusInProgress})
	return len(j.entries), nil
}

func (j *memoryJournal) UpdateLogEntrySuccess(id int, _ time.Time, result models.RefreshRunResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[id-1] = journalEntry{status: models.RunStatusSuccess, result: result}
	return nil
}

func (j *memoryJournal) UpdateLogEntryFailure(id int, _ time.Time, failure models.RefreshRunFailure) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[id-1] = journalEntry{status: models.RunStatusFailed, failure: failure}
	return nil
}

func (j *memoryJournal) GetLastRun() (*models.RefreshRunLog, error) { return nil, nil }

func (j *memoryJournal) GetRecentRuns(int) ([]models.RefreshRunLog, error) { return nil, nil }

func (j *memoryJournal) last() journalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.entries[len(j.entries)-1]
}

type stubProvisioner struct {
	err error
}

func (p stubProvisioner) ApplySchema(context.Context, string, *models.DatasetSpec) (*powerbi.ApplyResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &powerbi.ApplyResult{DatasetID: "ds-1"}, nil
}

type stubLoader struct {
	release chan struct{}
	err     error
	tables  map[string][]models.Row
}

func (l *stubLoader) WipeAndReload(_ context.Context, _ string, _ *models.DatasetSpec, tables map[string][]models.Row) (*load.UploadResult, error) {
	if l.release != nil {
		<-l.release
	}
	l.tables = tables
	if l.err != nil {
		return nil, l.err
	}
	rows := 0
	for _, tableRows := range tables {
		rows += len(tableRows)
	}
	return &load.UploadResult{TablesProcessed: len(tables), TotalRowsPosted: rows, TotalPostRequests: len(tables)}, nil
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []websocket.RunNotice
}

func (n *noticeRecorder) ReportRun(notice websocket.RunNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func writeCanonical(t *testing.T, dataDir string) {
	t.Helper()
	records := map[string]string{
		extractors.DatasetWorkflowDefinitions: `{"workflow_definition_id":"workflow_definition_a","source_page_id":"src-a","page_title":"Intake"}`,
		extractors.DatasetWorkflowStages:      `{"workflow_stage_id":"workflow_stage_1","workflow_definition_id":"workflow_definition_a","source_page_id":"s1","stage_number":1,"stage_label":"Intake","sort_key":"001"}`,
		extractors.DatasetTimeslices:          `{"timeslice_id":"ts1","from_step_id":null,"to_step_id":"workflow_stage_1","started_at":"2025-01-06T09:00:00.000Z","ended_at":"2025-01-06T10:30:00.000Z","duration_seconds":5400,"source_page_id":"p1"}`,
	}
	for dataset, line := range records {
		dir := filepath.Join(dataDir, "canon", dataset, "2025-01-06")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "records.jsonl"), []byte(line+"\n"), 0o644))
	}
}

func newTestRunner(t *testing.T, provisioner schemaProvisioner, loader datasetLoader) (*RefreshRunner, *memoryJournal, *noticeRecorder) {
	t.Helper()
	dataDir := t.TempDir()
	writeCanonical(t, dataDir)

	cfg := config.GetConfig()
	cfg.DataDir = dataDir
	cfg.SnapshotDir = t.TempDir()

	spec, err := models.BuildModelSpec(cfg.PowerBI.DatasetName)
	require.NoError(t, err)

	logger := utils.NewDiscardLogger()
	journal := &memoryJournal{}
	notices := &noticeRecorder{}
	return &RefreshRunner{
		config:      cfg,
		spec:        spec,
		logger:      logger,
		source:      extractors.NewExtractor(dataDir, logger),
		transformer: transform.NewTransformer(spec, time.UTC, logger),
		provisioner: provisioner,
		loader:      loader,
		runs:        journal,
		notifier:    notices,
		baseCtx:     context.Background(),
	}, journal, notices
}

func TestExecuteRefreshUploadsAllTables(t *testing.T) {
	loader := &stubLoader{}
	runner, journal, notices := newTestRunner(t, stubProvisioner{}, loader)

	require.NoError(t, runner.ExecuteRefresh(context.Background()))

	assert.Len(t, loader.tables, len(runner.spec.Tables))
	assert.NotEmpty(t, loader.tables[models.TableFactTimeslices])

	entry := journal.last()
	assert.Equal(t, models.RunStatusSuccess, entry.status)
	assert.Equal(t, "ds-1", entry.result.DatasetID)
	assert.Equal(t, len(runner.spec.Tables), entry.result.TablesProcessed)

	require.Len(t, notices.notices, 1)
	assert.Equal(t, models.RunStatusSuccess, notices.notices[0].Status)
	assert.False(t, runner.Running())
}

func TestExecuteRefreshWritesSnapshot(t *testing.T) {
	loader := &stubLoader{}
	runner, _, _ := newTestRunner(t, stubProvisioner{}, loader)

	require.NoError(t, runner.ExecuteRefresh(context.Background()))

	entries, err := os.ReadDir(runner.config.SnapshotDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	tables, _, err := processor.ReadSnapshot(filepath.Join(runner.config.SnapshotDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Len(t, tables[models.TableFactTimeslices], len(loader.tables[models.TableFactTimeslices]))
}

func TestExecuteRefreshJournalsFailedBatch(t *testing.T) {
	loader := &stubLoader{err: &load.UploadError{
		Table:      models.TableDimStage,
		Phase:      load.PhasePosting,
		BatchIndex: 2,
		BatchCount: 3,
		StatusCode: 400,
		Err:        errors.New("bad request"),
	}}
	runner, journal, notices := newTestRunner(t, stubProvisioner{}, loader)

	err := runner.ExecuteRefresh(context.Background())
	require.Error(t, err)

	entry := journal.last()
	assert.Equal(t, models.RunStatusFailed, entry.status)
	assert.Equal(t, models.TableDimStage, entry.failure.Table)
	assert.Equal(t, 2, entry.failure.Batch)
	assert.Contains(t, entry.failure.ErrorMessage, "пакет 2 из 3")

	require.Len(t, notices.notices, 1)
	assert.Equal(t, models.RunStatusFailed, notices.notices[0].Status)
}

func TestExecuteRefreshStopsWhenProvisioningFails(t *testing.T) {
	loader := &stubLoader{}
	runner, journal, _ := newTestRunner(t, stubProvisioner{err: errors.New("forbidden")}, loader)

	err := runner.ExecuteRefresh(context.Background())
	assert.ErrorContains(t, err, "forbidden")
	assert.Nil(t, loader.tables)
	assert.Equal(t, models.RunStatusFailed, journal.last().status)
}

func TestTriggerRefreshRejectsOverlappingRuns(t *testing.T) {
	loader := &stubLoader{release: make(chan struct{})}
	runner, journal, _ := newTestRunner(t, stubProvisioner{}, loader)

	require.True(t, runner.TriggerRefresh())
	assert.True(t, runner.Running())
	assert.False(t, runner.TriggerRefresh())
	assert.ErrorIs(t, runner.ExecuteRefresh(context.Background()), errRefreshInProgress)

	close(loader.release)
	require.Eventually(t, func() bool { return !runner.Running() }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.RunStatusSuccess, journal.last().status)
}
