package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// ETLLogger представляет логгер для ETL-процесса
type ETLLogger struct {
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
	isVerbose   bool
	echo        bool
}

// NewETLLogger создает новый экземпляр логгера для ETL
func NewETLLogger(verbose bool) *ETLLogger {
	// Создаем или открываем лог-файл для записи
	currentTime := time.Now().Format("2006-01-02")
	logFileName := fmt.Sprintf("etl_log_%s.log", currentTime)

	file, err := os.OpenFile(logFileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Не удалось открыть или создать файл лога: %v", err)
	}

	logger := NewETLLoggerWithWriter(file, verbose)
	logger.echo = true
	return logger
}

// NewETLLoggerWithWriter создает логгер, пишущий только в переданный writer (без дублирования в stdout)
func NewETLLoggerWithWriter(w io.Writer, verbose bool) *ETLLogger {
	// Инициализируем логгеры для разных уровней
	return &ETLLogger{
		infoLogger:  log.New(w, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile),
		warnLogger:  log.New(w, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile),
		errorLogger: log.New(w, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile),
		debugLogger: log.New(w, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile),
		isVerbose:   verbose,
	}
}

// NewDiscardLogger возвращает логгер, который ничего не пишет
func NewDiscardLogger() *ETLLogger {
	return NewETLLoggerWithWriter(io.Discard, false)
}

// Info логирует информационное сообщение
func (l *ETLLogger) Info(format string, v ...interface{}) {
	l.output(l.infoLogger, "INFO:", format, v...)
}

// Warn логирует предупреждение (аномалии данных, повторные попытки)
func (l *ETLLogger) Warn(format string, v ...interface{}) {
	l.output(l.warnLogger, "WARN:", format, v...)
}

// Error логирует сообщение об ошибке
func (l *ETLLogger) Error(format string, v ...interface{}) {
	l.output(l.errorLogger, "ERROR:", format, v...)
}

// Debug логирует отладочное сообщение (только если включен verbose режим)
func (l *ETLLogger) Debug(format string, v ...interface{}) {
	if !l.isVerbose {
		return
	}
	l.output(l.debugLogger, "DEBUG:", format, v...)
}

func (l *ETLLogger) output(target *log.Logger, prefix, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	_ = target.Output(3, msg)

	// Также выводим в стандартный вывод
	if l.echo {
		log.Println(prefix, msg)
	}
}

// LogRefreshStart логирует начало обновления набора данных
func (l *ETLLogger) LogRefreshStart(datasetName string) {
	l.Info("Начало обновления набора данных %q", datasetName)
}

// LogRefreshComplete логирует завершение обновления набора данных
func (l *ETLLogger) LogRefreshComplete(startTime time.Time, tables, rows, requests int) {
	duration := time.Since(startTime)
	l.Info("Обновление завершено. Длительность: %v", duration)
	l.Info("Загружено: %d таблиц, %d строк, %d запросов на вставку", tables, rows, requests)
}

// LogExtractStart логирует начало фазы извлечения данных
func (l *ETLLogger) LogExtractStart() {
	l.Info("Начало фазы Extract (чтение канонических объектов)")
}

// LogExtractComplete логирует завершение фазы извлечения данных
func (l *ETLLogger) LogExtractComplete(definitions, stages, timeslices int, duration time.Duration) {
	l.Info("Фаза Extract завершена. Длительность: %v", duration)
	l.Info("Извлечено: %d процессов, %d этапов, %d интервалов", definitions, stages, timeslices)
}

// LogTransformComplete логирует завершение фазы трансформации
func (l *ETLLogger) LogTransformComplete(rowsByTable map[string]int, duration time.Duration) {
	l.Info("Фаза Transform завершена. Длительность: %v", duration)
	for table, count := range rowsByTable {
		l.Debug("Таблица %s: %d строк", table, count)
	}
}
