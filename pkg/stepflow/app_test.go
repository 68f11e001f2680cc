package stepflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/RealZimboGuy/stepflow/internal/config"
	"github.com/RealZimboGuy/stepflow/internal/util"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/core"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/models"

	"github.com/stretchr/testify/require"
)

var client = &http.Client{Timeout: 10 * time.Second}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// startApp runs the whole application until the test ends and returns its base URL.
// Database and queue selection come from environment set by the caller.
func startApp(t *testing.T) string {
	t.Helper()
	port := freePort(t)
	t.Setenv(config.SERVER_WEB_PORT, strconv.Itoa(port))
	t.Setenv("HTTP_ADDR", "")
	t.Setenv(config.QUEUE_POLL_INTERVAL, "50ms")
	t.Setenv(config.LOG_STEP_DELAY, "0s")
	t.Setenv(config.RETRY_INTERVAL_MIN, "100ms")
	t.Setenv(config.RETRY_INTERVAL_MAX, "200ms")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, http.NewServeMux(), core.NewRealClock())
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("app exited with error: %v", err)
			}
		case <-time.After(15 * time.Second):
			t.Errorf("app did not shut down")
		}
	})

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := client.Get(baseURL + "/api/workflows")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 50*time.Millisecond, "app never became ready")
	return baseURL
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := client.Post(url, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func getJSON[T any](t *testing.T, url string) (T, int) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var zero T
	if resp.StatusCode != http.StatusOK {
		return zero, resp.StatusCode
	}
	data, err := util.DecodeJSONBodyResponse[T](resp)
	require.NoError(t, err)
	return data, resp.StatusCode
}

func createWorkflow(t *testing.T, baseURL string, workflowID string, steps ...map[string]any) {
	t.Helper()
	req := map[string]any{"workflow_id": workflowID, "definition": map[string]any{"steps": steps}}
	resp := postJSON(t, baseURL+"/api/workflows", req)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func startExecution(t *testing.T, baseURL string, workflowID string) models.StartExecutionResponse {
	t.Helper()
	resp := postJSON(t, baseURL+"/api/workflows/"+workflowID+"/executions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	started, err := util.DecodeJSONBodyResponse[models.StartExecutionResponse](resp)
	require.NoError(t, err)
	return started
}

// waitForStatus polls the execution until it reaches status and returns the final record.
func waitForStatus(t *testing.T, baseURL string, started models.StartExecutionResponse, status string) models.ExecutionApiResponse {
	t.Helper()
	url := baseURL + "/api/workflows/" + started.WorkflowID + "/executions/" + started.ExecutionID
	var last models.ExecutionApiResponse
	require.Eventually(t, func() bool {
		last, _ = getJSON[models.ExecutionApiResponse](t, url)
		return last.Status == status
	}, 30*time.Second, 50*time.Millisecond, "execution never reached %s", status)
	return last
}
