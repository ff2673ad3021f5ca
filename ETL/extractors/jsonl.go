package extractors

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	recordsFileName = "records.jsonl"
	maxLineSize     = 16 * 1024 * 1024
)

// latestDayDir возвращает последнюю (в лексикографическом порядке) поддиректорию набора
func latestDayDir(datasetDir string) (string, error) {
	entries, err := os.ReadDir(datasetDir)
	if err != nil {
		return "", fmt.Errorf("ошибка чтения директории %s: %w", datasetDir, err)
	}

	var days []string
	for _, entry := range entries {
		if entry.IsDir() {
			days = append(days, entry.Name())
		}
	}
	if len(days) == 0 {
		return "", fmt.Errorf("в директории %s нет выгрузок", datasetDir)
	}

	sort.Strings(days)
	return days[len(days)-1], nil
}

// readJSONL читает файл, в котором каждая непустая строка - JSON-объект
func readJSONL[T any](path string) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var records []T
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("ошибка разбора %s, строка %d: %w", filepath.Base(path), lineNumber, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", path, err)
	}

	return records, nil
}
