package processor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
)

const (
	snapshotExt      = ".jsonl.sz"
	manifestFileName = "manifest.json.sz"
)

// SnapshotManifest описывает архив таблиц одного запуска
type SnapshotManifest struct {
	CreatedAt time.Time      `json:"created_at"`
	Tables    map[string]int `json:"tables"`
}

// WriteSnapshot записывает каждую таблицу в <dir>/<таблица>.jsonl.sz (поток Snappy, строка JSON на запись)
// и сводку в manifest.json.sz
func WriteSnapshot(dir string, tables map[string][]models.Row, createdAt time.Time) (*SnapshotManifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории архива %s: %w", dir, err)
	}

	manifest := &SnapshotManifest{CreatedAt: createdAt.UTC(), Tables: make(map[string]int, len(tables))}
	for name, rows := range tables {
		if err := writeTable(filepath.Join(dir, name+snapshotExt), rows); err != nil {
			return nil, fmt.Errorf("ошибка архивирования таблицы %s: %w", name, err)
		}
		manifest.Tables[name] = len(rows)
	}

	payload, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации манифеста: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFileName), CompressPayload(payload), 0o644); err != nil {
		return nil, fmt.Errorf("ошибка записи манифеста: %w", err)
	}

	return manifest, nil
}

func writeTable(path string, rows []models.Row) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()

	stream := newStreamWriter(file)
	encoder := json.NewEncoder(stream)
	for _, row := range rows {
		if err := encoder.Encode(row); err != nil {
			return err
		}
	}
	return stream.Close()
}

// ReadSnapshot читает таблицы архива, записанного WriteSnapshot.
// Числа возвращаются как json.Number, чтобы повторная сериализация не меняла значения.
func ReadSnapshot(dir string) (map[string][]models.Row, *SnapshotManifest, error) {
	compressed, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка чтения манифеста архива: %w", err)
	}
	payload, err := DecompressPayload(compressed)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка распаковки манифеста архива: %w", err)
	}
	var manifest SnapshotManifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return nil, nil, fmt.Errorf("ошибка разбора манифеста архива: %w", err)
	}

	names := make([]string, 0, len(manifest.Tables))
	for name := range manifest.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	tables := make(map[string][]models.Row, len(names))
	for _, name := range names {
		rows, err := readTable(filepath.Join(dir, name+snapshotExt))
		if err != nil {
			return nil, nil, fmt.Errorf("ошибка чтения таблицы %s из архива: %w", name, err)
		}
		if len(rows) != manifest.Tables[name] {
			return nil, nil, fmt.Errorf("архив поврежден: таблица %s содержит %d строк, ожидалось %d", name, len(rows), manifest.Tables[name])
		}
		tables[name] = rows
	}

	return tables, &manifest, nil
}

func readTable(path string) ([]models.Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(bufio.NewReader(newStreamReader(file)))
	decoder.UseNumber()

	rows := []models.Row{}
	for decoder.More() {
		var row models.Row
		if err := decoder.Decode(&row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SnapshotDirName возвращает имя поддиректории архива для момента запуска
func SnapshotDirName(at time.Time) string {
	return at.UTC().Format("20060102T150405Z")
}
