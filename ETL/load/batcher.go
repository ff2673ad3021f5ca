package load

import "fmt"

// MaxRowsPerRequest - максимальное число строк в одном запросе на вставку, которое принимает приемник
const MaxRowsPerRequest = 10000

// BatchRows делит строки на последовательные пакеты не длиннее maxBatchSize, сохраняя порядок.
// Пакеты являются подсрезами входного среза. Пустой вход дает ноль пакетов.
func BatchRows[T any](rows []T, maxBatchSize int) ([][]T, error) {
	if maxBatchSize <= 0 {
		return nil, fmt.Errorf("размер пакета должен быть положительным, получено %d", maxBatchSize)
	}
	if maxBatchSize > MaxRowsPerRequest {
		return nil, fmt.Errorf("превышен лимит приемника: размер пакета %d больше %d", maxBatchSize, MaxRowsPerRequest)
	}

	batches := make([][]T, 0, (len(rows)+maxBatchSize-1)/maxBatchSize)
	for start := 0; start < len(rows); start += maxBatchSize {
		end := min(start+maxBatchSize, len(rows))
		batches = append(batches, rows[start:end:end])
	}

	return batches, nil
}
