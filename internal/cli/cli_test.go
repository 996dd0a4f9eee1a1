package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiStub struct {
	submitted SubmitRequest
	decision  DecisionRequest
	async     bool
}

func (s *apiStub) server(t *testing.T) *httptest.Server {
	t.Helper()

	session := SessionResponse{
		SessionID:     "s1",
		Stage:         "respond",
		Records:       1,
		PendingReview: 1,
		Classifications: []ClassificationResponse{
			{RecordID: "r1", Code: "43211503", Title: "Notebook computers", Confidence: 40, Source: "model"},
		},
		QAResults: []QAResultResponse{{ClassificationID: "r1", WeightedScore: 85, Verdict: "flagged"}},
		Response:  "Processed 1 record(s).",
	}

	write := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sessions/{id}/records", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&s.submitted))
		write(w, http.StatusOK, map[string]any{"data": session})
	})
	mux.HandleFunc("POST /api/v1/sessions/{id}/decisions", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&s.decision))
		if r.URL.Query().Get("async") == "true" {
			s.async = true
			write(w, http.StatusAccepted, map[string]any{"data": DecisionAccepted{SessionID: "s1", ItemID: s.decision.ItemID, Queued: true}})
			return
		}
		write(w, http.StatusOK, map[string]any{"data": session})
	})
	mux.HandleFunc("GET /api/v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "s1" {
			write(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "NOT_FOUND", "message": "session not found"}})
			return
		}
		write(w, http.StatusOK, map[string]any{"data": session})
	})
	mux.HandleFunc("GET /api/v1/sessions/{id}/hitl", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, map[string]any{
			"data":  []HITLItemResponse{{ID: "h1", RecordID: "r1", Priority: "high", Verdict: "flagged", Confidence: 40}},
			"total": 1,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, baseURL string, jsonMode bool, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	cmd := NewSessionCmd(
		func() *Client { return NewClient(baseURL) },
		func() *Output { return NewOutputTo(&stdout, &stderr, jsonMode) },
	)
	cmd.SetArgs(args)
	cmd.SetOut(&stderr)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestSessionSubmit(t *testing.T) {
	stub := &apiStub{}
	srv := stub.server(t)

	path := filepath.Join(t.TempDir(), "records.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: r1
  vendor: Dell
  description: Dell laptop for new hire
  amount: 1200
`), 0o600))

	stdout, stderr, err := run(t, srv.URL, false, "submit", "s1", "--file", path, "--intent", "enrich")
	require.NoError(t, err)

	require.Len(t, stub.submitted.Records, 1)
	assert.Equal(t, "Dell", stub.submitted.Records[0].Vendor)
	assert.Equal(t, 1200.0, stub.submitted.Records[0].Amount)
	assert.Equal(t, "enrich", stub.submitted.Intent)
	assert.Contains(t, stdout, "43211503")
	assert.Contains(t, stdout, "flagged")
	assert.Contains(t, stderr, "1 pending review")
}

func TestSessionResume(t *testing.T) {
	stub := &apiStub{}
	srv := stub.server(t)

	_, _, err := run(t, srv.URL, false, "resume", "s1", "h1", "--action", "modify", "--code", "43211507", "--title", "Desktop computers")
	require.NoError(t, err)
	assert.Equal(t, "h1", stub.decision.ItemID)
	assert.Equal(t, "modify", stub.decision.Action)
	assert.Equal(t, "43211507", stub.decision.Code)
	assert.False(t, stub.async)

	_, stderr, err := run(t, srv.URL, false, "resume", "s1", "h1", "--action", "approve", "--async")
	require.NoError(t, err)
	assert.True(t, stub.async)
	assert.Contains(t, stderr, "queued")
}

func TestSessionQueue_JSON(t *testing.T) {
	srv := (&apiStub{}).server(t)

	stdout, _, err := run(t, srv.URL, true, "queue", "s1")
	require.NoError(t, err)

	var items []HITLItemResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "high", items[0].Priority)
}

func TestSessionQueue_Table(t *testing.T) {
	srv := (&apiStub{}).server(t)

	stdout, stderr, err := run(t, srv.URL, false, "queue", "s1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "PRIORITY")
	assert.Contains(t, stdout, "high")
	assert.Empty(t, stderr)
}

func TestSessionShow_NotFound(t *testing.T) {
	srv := (&apiStub{}).server(t)

	_, _, err := run(t, srv.URL, false, "show", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestReadRecords_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"r1","description":"paper","amount":12.5}]`), 0o600))

	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 12.5, records[0].Amount)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("[]"), 0o600))
	_, err = ReadRecords(empty)
	assert.Error(t, err)
}
