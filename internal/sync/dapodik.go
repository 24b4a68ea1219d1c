package sync

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// dapodikClient pulls school, student and teacher records from a Dapodik
// instance. Dapodik authenticates with a bearer token.
type dapodikClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newDapodikClient(baseURL, apiKey string, timeout time.Duration) *dapodikClient {
	return &dapodikClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *dapodikClient) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dapodik returned status %d for %s", resp.StatusCode, path)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// listEnvelope tolerates both a bare JSON array and the {"data": [...]}
// wrapper Dapodik deployments disagree on.
func (c *dapodikClient) getList(path string) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := c.get(path, &raw); err != nil {
		return nil, err
	}
	return decodeList(raw)
}

func decodeList(raw json.RawMessage) ([]map[string]any, error) {
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}

	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("unexpected list response shape: %w", err)
	}
	return envelope.Data, nil
}

func (c *dapodikClient) FetchSchool() (map[string]any, error) {
	var raw json.RawMessage
	if err := c.get("/sekolah", &raw); err != nil {
		return nil, err
	}

	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("unexpected school response shape: %w", err)
	}
	if data, ok := item["data"].(map[string]any); ok {
		return data, nil
	}
	return item, nil
}

func (c *dapodikClient) FetchStudents() ([]map[string]any, error) {
	return c.getList("/siswa")
}

func (c *dapodikClient) FetchTeachers() ([]map[string]any, error) {
	return c.getList("/guru")
}
