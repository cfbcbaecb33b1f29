package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/novapulse/pwa-bridge/internal/bridge"
)

// Client is a thin wrapper over the Airtable REST API: filtered select,
// create, update. Table semantics live in the adapters on top of it.
type Client struct {
	baseURL string
	apiKey  string
	baseID  string
	httpc   *http.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func NewClient(apiKey, baseID string, opts ...Option) *Client {
	c := &Client{
		baseURL: "https://api.airtable.com",
		apiKey:  apiKey,
		baseID:  baseID,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Record struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime time.Time      `json:"createdTime"`
}

// Str reads a field as a trimmed string, tolerating absent fields.
func (r Record) Str(field string) string {
	v, ok := r.Fields[field]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

type selectQuery struct {
	formula    string
	maxRecords int
	sortField  string
	sortDesc   bool
}

func (c *Client) selectRecords(ctx context.Context, table string, q selectQuery) ([]Record, error) {
	params := url.Values{}
	if q.formula != "" {
		params.Set("filterByFormula", q.formula)
	}
	if q.maxRecords > 0 {
		params.Set("maxRecords", strconv.Itoa(q.maxRecords))
	}
	if q.sortField != "" {
		params.Set("sort[0][field]", q.sortField)
		dir := "asc"
		if q.sortDesc {
			dir = "desc"
		}
		params.Set("sort[0][direction]", dir)
	}

	var out struct {
		Records []Record `json:"records"`
	}
	path := fmt.Sprintf("/v0/%s/%s?%s", c.baseID, url.PathEscape(table), params.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (c *Client) createRecord(ctx context.Context, table string, fields map[string]any) (Record, error) {
	var rec Record
	path := fmt.Sprintf("/v0/%s/%s", c.baseID, url.PathEscape(table))
	err := c.do(ctx, http.MethodPost, path, map[string]any{"fields": fields}, &rec)
	return rec, err
}

func (c *Client) updateRecord(ctx context.Context, table, recordID string, fields map[string]any) error {
	path := fmt.Sprintf("/v0/%s/%s/%s", c.baseID, url.PathEscape(table), recordID)
	return c.do(ctx, http.MethodPatch, path, map[string]any{"fields": fields}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &bridge.DeliveryError{System: "airtable", Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &bridge.DeliveryError{
			System:   "airtable",
			Endpoint: path,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("airtable api error: %s body=%s", resp.Status, respBody),
		}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return &bridge.DeliveryError{System: "airtable", Endpoint: path, Err: err}
		}
	}
	return nil
}

// formulaEq builds an {field}='value' equality predicate. Single quotes in
// the value are escaped so identities cannot break out of the formula.
func formulaEq(field, value string) string {
	return fmt.Sprintf("{%s}='%s'", field, strings.ReplaceAll(value, "'", "\\'"))
}

func formulaAnd(preds ...string) string {
	if len(preds) == 1 {
		return preds[0]
	}
	return "AND(" + strings.Join(preds, ", ") + ")"
}
