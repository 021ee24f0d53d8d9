package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cipulse/backend/internal/logger"
	"github.com/google/uuid"
)

// JenkinsJob is one entry of the CI server's job list.
type JenkinsJob struct {
	Name               string
	Color              string
	LastBuildTimestamp time.Time
}

type jenkinsJobPayload struct {
	Name      string `json:"name"`
	Color     string `json:"color"`
	LastBuild *struct {
		Timestamp int64 `json:"timestamp"`
	} `json:"lastBuild"`
}

type jenkinsListPayload struct {
	Jobs []jenkinsJobPayload `json:"jobs"`
}

// JenkinsAPICall tracks one request to the CI server for the admin surface.
type JenkinsAPICall struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Endpoint  string        `json:"endpoint"`
	Status    int           `json:"status"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// JenkinsService talks to the external CI server. Every call has a bounded
// timeout; callers are expected to degrade on error rather than retry hard.
type JenkinsService struct {
	baseURL   string
	username  string
	apiToken  string
	client    *http.Client
	apiCalls  []JenkinsAPICall
	callMutex sync.RWMutex
}

func NewJenkinsService(baseURL, username, apiToken string) *JenkinsService {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	timeout := 10 * time.Second
	if timeoutStr := os.Getenv("JENKINS_TIMEOUT_SECONDS"); timeoutStr != "" {
		if seconds, err := strconv.Atoi(timeoutStr); err == nil && seconds > 0 {
			timeout = time.Duration(seconds) * time.Second
		}
	}

	return &JenkinsService{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		apiToken: apiToken,
		client:   &http.Client{Timeout: timeout},
	}
}

// ListJobs fetches the job list, optionally scoped to a folder path like
// "team/pipelines". Network or decode failures return the error; the caller
// decides whether to serve stale data instead.
func (js *JenkinsService) ListJobs(folderPath string) ([]JenkinsJob, error) {
	endpoint := js.baseURL
	for _, segment := range strings.Split(folderPath, "/") {
		if segment == "" {
			continue
		}
		endpoint += "/job/" + url.PathEscape(segment)
	}
	endpoint += "/api/json?tree=jobs[name,color,lastBuild[timestamp]]"

	body, status, err := js.do(http.MethodGet, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("job list request returned status %d", status)
	}

	var payload jenkinsListPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode job list: %w", err)
	}

	jobs := make([]JenkinsJob, 0, len(payload.Jobs))
	for _, j := range payload.Jobs {
		job := JenkinsJob{Name: j.Name, Color: j.Color}
		if j.LastBuild != nil && j.LastBuild.Timestamp > 0 {
			job.LastBuildTimestamp = time.UnixMilli(j.LastBuild.Timestamp)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// TriggerBuild starts a new build of the named job.
func (js *JenkinsService) TriggerBuild(jobName string) error {
	if jobName == "" {
		return fmt.Errorf("job name is required")
	}

	endpoint := js.baseURL + "/job/" + url.PathEscape(jobName) + "/build"
	_, status, err := js.do(http.MethodPost, endpoint)
	if err != nil {
		return fmt.Errorf("failed to trigger build for %s: %w", jobName, err)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return fmt.Errorf("build trigger for %s returned status %d", jobName, status)
	}

	logger.WithJenkins(endpoint).Info("Triggered build")
	return nil
}

func (js *JenkinsService) do(method, endpoint string) ([]byte, int, error) {
	call := JenkinsAPICall{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Endpoint:  endpoint,
	}
	start := time.Now()

	req, err := http.NewRequest(method, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	if js.username != "" {
		req.SetBasicAuth(js.username, js.apiToken)
	}

	resp, err := js.client.Do(req)
	call.Duration = time.Since(start)
	if err != nil {
		call.Error = err.Error()
		js.trackCall(call)
		return nil, 0, err
	}
	defer resp.Body.Close()

	call.Status = resp.StatusCode
	js.trackCall(call)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (js *JenkinsService) trackCall(call JenkinsAPICall) {
	js.callMutex.Lock()
	defer js.callMutex.Unlock()

	js.apiCalls = append(js.apiCalls, call)
	// Keep only the last 100 calls.
	if len(js.apiCalls) > 100 {
		js.apiCalls = js.apiCalls[len(js.apiCalls)-100:]
	}
}

// GetAPICalls returns the recorded CI server calls, most recent last.
func (js *JenkinsService) GetAPICalls() []JenkinsAPICall {
	js.callMutex.RLock()
	defer js.callMutex.RUnlock()

	calls := make([]JenkinsAPICall, len(js.apiCalls))
	copy(calls, js.apiCalls)
	return calls
}

// ClearAPICalls drops the recorded call history.
func (js *JenkinsService) ClearAPICalls() {
	js.callMutex.Lock()
	defer js.callMutex.Unlock()
	js.apiCalls = nil
}

// ColorToStatusClass maps a Jenkins ball color to the presentation class used
// by dashboard consumers. The mapping is part of the wire contract.
func ColorToStatusClass(color string) string {
	base := strings.ToLower(strings.TrimSuffix(color, "_anime"))
	switch base {
	case "red":
		return "critical"
	case "yellow":
		return "warning"
	case "blue":
		return "success"
	case "grey", "disabled":
		return "neutral"
	case "aborted":
		return "dark-neutral"
	case "notbuilt":
		return "light-neutral"
	default:
		return "neutral"
	}
}

// IsBuildingColor reports whether a Jenkins color denotes a build in
// progress (the _anime suffix).
func IsBuildingColor(color string) bool {
	return strings.HasSuffix(strings.ToLower(color), "_anime")
}
