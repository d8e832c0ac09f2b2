package outbox

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
)

const registryContentType = "application/vnd.schemaregistry.v1+json"

// RegistryError is a non-2xx answer from the Schema Registry.
type RegistryError struct {
	Op     string
	Status int
	Body   string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("schema registry %s: status %d: %s", e.Op, e.Status, e.Body)
}

// SchemaRegistryClient speaks the two Schema Registry endpoints the
// dispatcher needs: latest version lookup and registration.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSchemaRegistryClient constructs a client with a 10s request timeout.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema returns the id of subject's latest schema, registering schema
// first when the subject does not exist yet.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	path := "/subjects/" + url.PathEscape(subject) + "/versions"

	id, err := c.call(ctx, http.MethodGet, path+"/latest", nil)
	if err == nil {
		return id, nil
	}
	var regErr *RegistryError
	if !errors.As(err, &regErr) || regErr.Status != http.StatusNotFound {
		return 0, err
	}

	body, err := json.Marshal(struct {
		SchemaType string `json:"schemaType"`
		Schema     string `json:"schema"`
	}{SchemaType: "JSON", Schema: schema})
	if err != nil {
		return 0, err
	}
	return c.call(ctx, http.MethodPost, path, body)
}

// call issues one request and decodes the {"id": n} both endpoints return.
func (c *SchemaRegistryClient) call(ctx context.Context, method, path string, body []byte) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", registryContentType)
	if body != nil {
		req.Header.Set("Content-Type", registryContentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &RegistryError{Op: method + " " + path, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("schema registry %s %s: decode: %w", method, path, err)
	}
	return payload.ID, nil
}
