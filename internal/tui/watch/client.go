package watch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/portwhine/portwhine/internal/model"
)

type tickMsg time.Time

type errMsg struct{ err error }

type pipelinesMsg []*model.Pipeline

type runsMsg struct {
	pipelineID string
	runs       []*model.Run
}

type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func getJSON(apiURL, apiKey, path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, apiURL+path, nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchHealth(apiURL, apiKey string) tea.Cmd {
	return func() tea.Msg {
		var h healthMsg
		if err := getJSON(apiURL, apiKey, "/healthz", &h); err != nil {
			return errMsg{err}
		}
		return h
	}
}

func fetchPipelines(apiURL, apiKey string) tea.Cmd {
	return func() tea.Msg {
		var pipelines []*model.Pipeline
		if err := getJSON(apiURL, apiKey, "/api/v1/pipeline/", &pipelines); err != nil {
			return errMsg{err}
		}
		return pipelinesMsg(pipelines)
	}
}

func fetchRuns(apiURL, apiKey, pipelineID string) tea.Cmd {
	return func() tea.Msg {
		var runs []*model.Run
		if err := getJSON(apiURL, apiKey, "/api/v1/pipeline/"+pipelineID+"/runs", &runs); err != nil {
			return errMsg{err}
		}
		return runsMsg{pipelineID: pipelineID, runs: runs}
	}
}
