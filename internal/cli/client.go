package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ClassificationResponse — классификация записи.
type ClassificationResponse struct {
	RecordID   string  `json:"record_id"`
	Code       string  `json:"code"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// QAResultResponse — оценка по рубрике.
type QAResultResponse struct {
	ClassificationID string  `json:"classification_id"`
	WeightedScore    float64 `json:"weighted_score"`
	Verdict          string  `json:"verdict"`
}

// HITLItemResponse — элемент очереди проверки.
type HITLItemResponse struct {
	ID         string  `json:"id"`
	RecordID   string  `json:"record_id"`
	Priority   string  `json:"priority"`
	Reason     string  `json:"reason"`
	Status     string  `json:"status"`
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	CreatedAt  string  `json:"created_at"`
}

// ErrorRecordResponse — ошибка обработки.
type ErrorRecordResponse struct {
	Stage       string `json:"stage"`
	RecordID    string `json:"record_id,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	RetryCount  int    `json:"retry_count"`
}

// SessionResponse — состояние сессии из API.
type SessionResponse struct {
	SessionID        string                   `json:"session_id"`
	Stage            string                   `json:"stage"`
	AwaitingDecision bool                     `json:"awaiting_decision"`
	Response         string                   `json:"response,omitempty"`
	Records          int                      `json:"records"`
	PendingReview    int                      `json:"pending_review"`
	Classifications  []ClassificationResponse `json:"classifications"`
	QAResults        []QAResultResponse       `json:"qa_results"`
	HITLQueue        []HITLItemResponse       `json:"hitl_queue"`
	Errors           []ErrorRecordResponse    `json:"errors"`
	Version          int64                    `json:"version"`
	UpdatedAt        string                   `json:"updated_at"`
}

// DecisionAccepted — ответ на асинхронное решение.
type DecisionAccepted struct {
	SessionID string `json:"session_id"`
	ItemID    string `json:"item_id"`
	Queued    bool   `json:"queued"`
}

// --- Request types ---

// Record — входная запись.
type Record struct {
	ID          string            `json:"id" yaml:"id"`
	Vendor      string            `json:"vendor" yaml:"vendor"`
	Description string            `json:"description" yaml:"description"`
	Amount      float64           `json:"amount" yaml:"amount"`
	Currency    string            `json:"currency,omitempty" yaml:"currency"`
	Date        string            `json:"date,omitempty" yaml:"date"`
	Department  string            `json:"department,omitempty" yaml:"department"`
	Attributes  map[string]string `json:"attributes,omitempty" yaml:"attributes"`
}

// SubmitRequest — подача записей.
type SubmitRequest struct {
	Records []Record `json:"records"`
	Intent  string   `json:"intent,omitempty"`
}

// DecisionRequest — решение по элементу проверки.
type DecisionRequest struct {
	ItemID   string `json:"item_id"`
	Action   string `json:"action"`
	Code     string `json:"code,omitempty"`
	Title    string `json:"title,omitempty"`
	Comment  string `json:"comment,omitempty"`
	Reviewer string `json:"reviewer,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Procura API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API. Ход сессии синхронный,
// поэтому таймаут рассчитан на обработку батча.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// --- Sessions ---

// SubmitRecords подаёт записи в сессию.
func (c *Client) SubmitRecords(sessionID string, req SubmitRequest) (*SessionResponse, error) {
	var s SessionResponse
	err := c.post(sessionPath(sessionID, "records"), req, &s)
	return &s, err
}

// Decide применяет решение синхронно.
func (c *Client) Decide(sessionID string, req DecisionRequest) (*SessionResponse, error) {
	var s SessionResponse
	err := c.post(sessionPath(sessionID, "decisions"), req, &s)
	return &s, err
}

// DecideAsync ставит решение в очередь.
func (c *Client) DecideAsync(sessionID string, req DecisionRequest) (*DecisionAccepted, error) {
	var accepted DecisionAccepted
	err := c.post(sessionPath(sessionID, "decisions")+"?async=true", req, &accepted)
	return &accepted, err
}

// GetSession возвращает состояние сессии.
func (c *Client) GetSession(sessionID string) (*SessionResponse, error) {
	var s SessionResponse
	err := c.get(sessionPath(sessionID, ""), &s)
	return &s, err
}

// ListHITL возвращает нерешённые элементы проверки.
func (c *Client) ListHITL(sessionID string) ([]HITLItemResponse, error) {
	var items []HITLItemResponse
	err := c.list(sessionPath(sessionID, "hitl"), nil, &items)
	return items, err
}

func sessionPath(sessionID, sub string) string {
	p := "/api/v1/sessions/" + url.PathEscape(sessionID)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
