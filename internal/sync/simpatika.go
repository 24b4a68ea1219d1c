package sync

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// simpatikaClient pulls records from a Simpatika instance. Simpatika
// authenticates with an X-API-Key header and prefixes routes with /api.
type simpatikaClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newSimpatikaClient(baseURL, apiKey string, timeout time.Duration) *simpatikaClient {
	return &simpatikaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *simpatikaClient) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("simpatika returned status %d for %s", resp.StatusCode, path)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *simpatikaClient) FetchSchool() (map[string]any, error) {
	var raw json.RawMessage
	if err := c.get("/api/sekolah", &raw); err != nil {
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

func (c *simpatikaClient) FetchStudents() ([]map[string]any, error) {
	var raw json.RawMessage
	if err := c.get("/api/siswa", &raw); err != nil {
		return nil, err
	}
	return decodeList(raw)
}

func (c *simpatikaClient) FetchTeachers() ([]map[string]any, error) {
	var raw json.RawMessage
	if err := c.get("/api/guru", &raw); err != nil {
		return nil, err
	}
	return decodeList(raw)
}
