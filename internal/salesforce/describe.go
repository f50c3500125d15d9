package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"sfextract/internal/describe"
)

// maxBatchRequests is the composite batch sub-request limit.
const maxBatchRequests = 25

type batchRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type batchBody struct {
	BatchRequests []batchRequest `json:"batchRequests"`
}

type batchResult struct {
	StatusCode int             `json:"statusCode"`
	Result     json.RawMessage `json:"result"`
}

type batchResponse struct {
	HasErrors bool          `json:"hasErrors"`
	Results   []batchResult `json:"results"`
}

// DescribeObjects describes every named object through the composite batch
// API. Requests with more than 25 objects are sent as successive composite
// calls. Any failed sub-request fails the whole describe.
func (c *Client) DescribeObjects(ctx context.Context, names []string) ([]describe.ObjectMeta, error) {
	out := make([]describe.ObjectMeta, 0, len(names))
	for start := 0; start < len(names); start += maxBatchRequests {
		end := min(start+maxBatchRequests, len(names))
		chunk := names[start:end]

		body := batchBody{BatchRequests: make([]batchRequest, len(chunk))}
		for i, name := range chunk {
			body.BatchRequests[i] = batchRequest{
				Method: http.MethodGet,
				URL:    fmt.Sprintf("v%s/sobjects/%s/describe", c.version, url.PathEscape(name)),
			}
		}

		var resp batchResponse
		if err := c.rest.DoJSON(ctx, http.MethodPost, c.dataURL("composite/batch"), body, &resp, nil); err != nil {
			return nil, apiError("describe", err)
		}
		if len(resp.Results) != len(chunk) {
			return nil, fmt.Errorf("salesforce: describe: %d results for %d objects", len(resp.Results), len(chunk))
		}
		for i, r := range resp.Results {
			if r.StatusCode < 200 || r.StatusCode > 299 {
				ae := &APIError{Op: "describe " + chunk[i], StatusCode: r.StatusCode}
				ae.Code, ae.Message = decodeErrorBody(r.Result)
				return nil, ae
			}
			var meta describe.ObjectMeta
			if err := json.Unmarshal(r.Result, &meta); err != nil {
				return nil, fmt.Errorf("salesforce: describe %s: decode: %w", chunk[i], err)
			}
			out = append(out, meta)
		}
	}
	c.logger.Printf("salesforce: described %d objects", len(out))
	return out, nil
}

type globalObject struct {
	Name      string `json:"name"`
	Queryable bool   `json:"queryable"`
}

type globalResponse struct {
	SObjects []globalObject `json:"sobjects"`
}

// DescribeGlobal returns the sorted names of all queryable objects.
// Concurrent callers share one request.
func (c *Client) DescribeGlobal(ctx context.Context) ([]string, error) {
	v, err, _ := c.global.Do("sobjects", func() (any, error) {
		var resp globalResponse
		if err := c.rest.DoJSON(ctx, http.MethodGet, c.dataURL("sobjects"), nil, &resp, nil); err != nil {
			return nil, apiError("describe global", err)
		}
		names := make([]string, 0, len(resp.SObjects))
		for _, o := range resp.SObjects {
			if o.Queryable {
				names = append(names, o.Name)
			}
		}
		sort.Strings(names)
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}
