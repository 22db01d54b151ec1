package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type fakeAPI struct {
	mu        sync.Mutex
	server    *httptest.Server
	requests  []recordedRequest
	responses map[string]string
}

func newFakeAPI(t *testing.T, responses map[string]string) *fakeAPI {
	t.Helper()
	api := &fakeAPI{responses: responses}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		api.mu.Lock()
		api.requests = append(api.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   string(body),
			Auth:   r.Header.Get("Authorization"),
		})
		api.mu.Unlock()

		if resp, ok := api.responses[r.Method+" "+r.URL.Path]; ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(resp))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"message":"extraction job not found","category":"NotFound"}`))
	}))
	t.Cleanup(api.server.Close)
	return api
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

const jobID = "0b8f6a1e-3f5c-4d7a-9a2e-1c2b3d4e5f60"

func TestSubmitWaitPrintsResult(t *testing.T) {
	responses := map[string]string{}
	responses["POST /api/extractions"] = `{"success":true,"data":{"jobId":"` + jobID + `","status":"PROCESSING"}}`
	responses["GET /api/extractions/"+jobID] = `{"success":true,"data":{"jobId":"` + jobID +
		`","status":"COMPLETED","structuredResult":{"assessment":{"community_name":"Calgary"}}}}`
	api := newFakeAPI(t, responses)
	pdf := filepath.Join(t.TempDir(), "calgary-2023.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.7"), 0o600))

	out, err := execute(t, "submit", pdf, "--wait", "--interval", "10ms", "--server", api.server.URL, "--token", "tok-alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Submitted job "+jobID)
	assert.Contains(t, out, `"community_name": "Calgary"`)

	require.GreaterOrEqual(t, len(api.requests), 2)
	assert.Equal(t, "Bearer tok-alice", api.requests[0].Auth)
	var sent map[string]string
	require.NoError(t, json.Unmarshal([]byte(api.requests[0].Body), &sent))
	assert.Equal(t, "calgary-2023.pdf", sent["fileName"])
	assert.Equal(t, "JVBERi0xLjc=", sent["documentBytesBase64"])
}

func TestImportSendsOverrides(t *testing.T) {
	api := newFakeAPI(t, map[string]string{
		"POST /api/extractions/" + jobID + "/import": `{"success":true,"data":{"assessmentId":"` + jobID + `","communityId":"` + jobID + `","createdCounts":{"indicatorScores":10,"strengths":2,"recommendations":3}}}`,
	})

	out, err := execute(t, "import", jobID, "--year", "2024", "--province", "BC", "--server", api.server.URL, "--token", "tok-alice")
	require.NoError(t, err)
	assert.Contains(t, out, "10 indicators, 2 strengths, 3 recommendations")

	require.Len(t, api.requests, 1)
	var sent struct {
		Overrides map[string]any `json:"overrides"`
	}
	require.NoError(t, json.Unmarshal([]byte(api.requests[0].Body), &sent))
	assert.Equal(t, float64(2024), sent.Overrides["assessmentYear"])
	assert.Equal(t, "BC", sent.Overrides["province"])
	assert.NotContains(t, sent.Overrides, "communityName")
}

func TestStatusReportsAPIErrors(t *testing.T) {
	api := newFakeAPI(t, nil)
	_, err := execute(t, "status", jobID, "--server", api.server.URL, "--token", "tok-alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction job not found")
	assert.Contains(t, err.Error(), "NotFound")
}

func TestTokenIsRequired(t *testing.T) {
	_, err := execute(t, "status", jobID, "--server", "http://127.0.0.1:1", "--token", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bearer token")
}
