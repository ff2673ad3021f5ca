package processor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
)

func TestSnapshotRoundTripKeepsValues(t *testing.T) {
	dir := filepath.Join(t.TempDir(), SnapshotDirName(time.Date(2025, 1, 6, 9, 30, 0, 0, time.UTC)))
	tables := map[string][]models.Row{
		models.TableDimStage: {
			{"stage_key": "s1", "Stage Number": 1, "workflow_definition_key": nil},
			{"stage_key": "s2", "Stage Number": 2, "workflow_definition_key": "wf"},
		},
		models.TableFactTimeslices: {
			{"Minutes Diff": 15, "From Time": 45663.375},
		},
		models.TableDimDate: {},
	}

	manifest, err := WriteSnapshot(dir, tables, time.Date(2025, 1, 6, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{models.TableDimStage: 2, models.TableFactTimeslices: 1, models.TableDimDate: 0}, manifest.Tables)
	assert.FileExists(t, filepath.Join(dir, "DimStage.jsonl.sz"))

	restored, readManifest, err := ReadSnapshot(dir)
	require.NoError(t, err)
	assert.Equal(t, manifest.Tables, readManifest.Tables)
	require.Len(t, restored, 3)
	assert.Empty(t, restored[models.TableDimDate])

	// Повторная сериализация дает тот же JSON, что и исходные строки
	for name, rows := range tables {
		want, err := json.Marshal(rows)
		require.NoError(t, err)
		got, err := json.Marshal(restored[name])
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(got), name)
	}
	assert.Equal(t, json.Number("45663.375"), restored[models.TableFactTimeslices][0]["From Time"])
}

func TestReadSnapshotDetectsTruncatedTable(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteSnapshot(dir, map[string][]models.Row{"T": {{"a": 1}, {"a": 2}}}, time.Now())
	require.NoError(t, err)

	_, err = rewriteTable(dir, "T", []models.Row{{"a": 1}})
	require.NoError(t, err)

	_, _, err = ReadSnapshot(dir)
	assert.ErrorContains(t, err, "архив поврежден")
}

func TestReadSnapshotWithoutManifest(t *testing.T) {
	_, _, err := ReadSnapshot(t.TempDir())
	assert.Error(t, err)
}

func TestPayloadCompression(t *testing.T) {
	payload := []byte(`{"tables":{"DimDate":3}}`)

	restored, err := DecompressPayload(CompressPayload(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, restored)

	_, err = DecompressPayload([]byte("not snappy"))
	assert.Error(t, err)
}

// rewriteTable перезаписывает одну таблицу архива, не трогая манифест
func rewriteTable(dir, name string, rows []models.Row) (string, error) {
	path := filepath.Join(dir, name+snapshotExt)
	if err := os.Remove(path); err != nil {
		return "", err
	}
	return path, writeTable(path, rows)
}
