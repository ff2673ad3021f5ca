package powerbi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/LilVoxy/workflow_analytics/ETL/load"
	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

const (
	DefaultBaseURL      = "https://api.powerbi.com/v1.0/myorg"
	DefaultAuthorityURL = "https://login.microsoftonline.com"
	Scope               = "https://analysis.windows.net/powerbi/api/.default"
	DefaultHTTPTimeout  = 60 * time.Second

	maxErrorBody = 4096
)

// Credentials - данные сервисного принципала
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// AuthorityURL переопределяет адрес сервера авторизации (по умолчанию login.microsoftonline.com)
	AuthorityURL string

	// BaseURL переопределяет адрес REST API (по умолчанию DefaultBaseURL)
	BaseURL string
}

// Client - клиент REST API Power BI для одной рабочей области.
// Реализует load.Sink.
type Client struct {
	httpClient *http.Client
	baseURL    string
	groupID    string
	logger     *utils.ETLLogger
}

var _ load.Sink = (*Client)(nil)

// NewClient создает клиент, получающий токены по схеме client credentials.
// timeout ограничивает каждый запрос вместе с получением токена; 0 означает DefaultHTTPTimeout.
func NewClient(ctx context.Context, creds Credentials, groupID string, timeout time.Duration, logger *utils.ETLLogger) *Client {
	authority := strings.TrimRight(creds.AuthorityURL, "/")
	if authority == "" {
		authority = DefaultAuthorityURL
	}
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	conf := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", authority, url.PathEscape(creds.TenantID)),
		Scopes:       []string{Scope},
	}

	// Токены запрашиваются клиентом с тем же тайм-аутом
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	httpClient := conf.Client(tokenCtx)
	httpClient.Timeout = timeout

	return NewClientWithHTTP(httpClient, baseURL, groupID, logger)
}

// NewClientWithHTTP создает клиент поверх готового HTTP-клиента (авторизация на его стороне)
func NewClientWithHTTP(httpClient *http.Client, baseURL, groupID string, logger *utils.ETLLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		groupID:    groupID,
		logger:     logger,
	}
}

// GroupID возвращает ID рабочей области клиента
func (c *Client) GroupID() string {
	return c.groupID
}

type columnBody struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
}

type tableBody struct {
	Name    string       `json:"name"`
	Columns []columnBody `json:"columns"`
}

type datasetBody struct {
	Name          string                    `json:"name"`
	DefaultMode   string                    `json:"defaultMode"`
	Tables        []tableBody               `json:"tables"`
	Relationships []models.RelationshipSpec `json:"relationships,omitempty"`
}

type rowsBody struct {
	Rows []models.Row `json:"rows"`
}

type listResponse[T any] struct {
	Value []T `json:"value"`
}

// apiColumnType переводит тип колонки в написание REST API
func apiColumnType(dataType string) string {
	switch dataType {
	case models.ColumnDateTime:
		return "Datetime"
	case models.ColumnBoolean:
		return "Bool"
	default:
		return dataType
	}
}

func toTableBody(table models.TableSpec) tableBody {
	body := tableBody{Name: table.Name, Columns: make([]columnBody, 0, len(table.Columns))}
	for _, column := range table.Columns {
		body.Columns = append(body.Columns, columnBody{Name: column.Name, DataType: apiColumnType(column.DataType)})
	}
	return body
}

func (c *Client) groupPath(format string, args ...any) string {
	return "/groups/" + url.PathEscape(c.groupID) + fmt.Sprintf(format, args...)
}

// ListDatasets возвращает наборы данных рабочей области
func (c *Client) ListDatasets(ctx context.Context) ([]load.DatasetInfo, error) {
	var resp listResponse[load.DatasetInfo]
	if err := c.do(ctx, "list_datasets", http.MethodGet, c.groupPath("/datasets"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// CreateDataset создает push-набор данных по спецификации
func (c *Client) CreateDataset(ctx context.Context, spec *models.DatasetSpec) (load.DatasetInfo, error) {
	retention := spec.DefaultRetentionPolicy
	if retention == "" {
		retention = models.DefaultRetentionPolicy
	}

	body := datasetBody{
		Name:          spec.Name,
		DefaultMode:   "Push",
		Tables:        make([]tableBody, 0, len(spec.Tables)),
		Relationships: spec.Relationships,
	}
	for _, table := range spec.Tables {
		body.Tables = append(body.Tables, toTableBody(table))
	}

	var created load.DatasetInfo
	path := c.groupPath("/datasets?defaultRetentionPolicy=%s", url.QueryEscape(retention))
	if err := c.do(ctx, "create_dataset", http.MethodPost, path, body, &created); err != nil {
		return load.DatasetInfo{}, err
	}
	return created, nil
}

// ListTables возвращает таблицы набора данных
func (c *Client) ListTables(ctx context.Context, datasetID string) ([]load.TableInfo, error) {
	var resp listResponse[load.TableInfo]
	path := c.groupPath("/datasets/%s/tables", url.PathEscape(datasetID))
	if err := c.do(ctx, "list_tables", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// PutTable создает или заменяет определение таблицы
func (c *Client) PutTable(ctx context.Context, datasetID string, table models.TableSpec) error {
	path := c.groupPath("/datasets/%s/tables/%s", url.PathEscape(datasetID), url.PathEscape(table.Name))
	return c.do(ctx, "put_table", http.MethodPut, path, toTableBody(table), nil)
}

// DeleteAllRows удаляет все строки таблицы
func (c *Client) DeleteAllRows(ctx context.Context, datasetID, table string) error {
	path := c.groupPath("/datasets/%s/tables/%s/rows", url.PathEscape(datasetID), url.PathEscape(table))
	return c.do(ctx, "delete_rows", http.MethodDelete, path, nil, nil)
}

// InsertRows добавляет строки в таблицу
func (c *Client) InsertRows(ctx context.Context, datasetID, table string, rows []models.Row) error {
	if len(rows) > load.MaxRowsPerRequest {
		return fmt.Errorf("превышен лимит приемника: %d строк в одном запросе", len(rows))
	}
	path := c.groupPath("/datasets/%s/tables/%s/rows", url.PathEscape(datasetID), url.PathEscape(table))
	return c.do(ctx, "post_rows", http.MethodPost, path, rowsBody{Rows: rows}, nil)
}

// do выполняет запрос; ответ не 2xx превращается в *load.SinkError, сбой соединения - в статус 503.
// Отказ сервера авторизации сохраняет его статус, чтобы 4xx не повторялись.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ошибка сериализации запроса %s: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			c.logger.Error("Сервер авторизации отклонил запрос токена (%s): %v", op, retrieveErr)
			return &load.SinkError{Op: op, StatusCode: retrieveErr.Response.StatusCode, Body: retrieveErr.Error()}
		}
		c.logger.Warn("Сбой соединения с Power BI (%s %s): %v", method, path, err)
		return &load.SinkError{Op: op, StatusCode: http.StatusServiceUnavailable, Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &load.SinkError{
			Op:         op,
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Body:       strings.TrimSpace(string(text)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &load.SinkError{Op: op, StatusCode: http.StatusServiceUnavailable, Body: err.Error()}
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("ошибка разбора ответа %s: %w", op, err)
	}
	return nil
}
