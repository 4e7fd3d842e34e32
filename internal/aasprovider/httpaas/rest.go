package httpaas

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
)

// restClient talks to a BaSyx-style AAS REST repository, grounded in the
// teacher's cloud connectors (internal/cloud/connectors/*.go), which also
// build requests against net/http directly rather than through a
// generated client.
type restClient struct {
	baseURL string
	http    *http.Client
	encode  bool
}

func newRESTClient(cfg Config) *restClient {
	return &restClient{
		baseURL: normalizeBaseURL(cfg.BaseURL),
		http:    &http.Client{Timeout: cfg.Timeout},
		encode:  cfg.EncodeIdentifiers,
	}
}

// normalizeBaseURL strips a trailing /aas or /submodels segment and
// appends /aas, per spec.md §4.7.
func normalizeBaseURL(base string) string {
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/submodels")
	base = strings.TrimSuffix(base, "/aas")
	return base + "/aas"
}

func (c *restClient) encodeIdentifier(id string) string {
	if !c.encode {
		return id
	}
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func (c *restClient) submodelURL(submodelID string) string {
	return fmt.Sprintf("%s/submodels/%s", c.baseURL, c.encodeIdentifier(submodelID))
}

func (c *restClient) elementsURL(submodelID string) string {
	return c.submodelURL(submodelID) + "/submodel-elements"
}

func (c *restClient) elementURL(submodelID, idShort string) string {
	return fmt.Sprintf("%s/%s", c.elementsURL(submodelID), url.PathEscape(idShort))
}

func (c *restClient) do(ctx context.Context, method, target string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpaas: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("httpaas: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func ok2xx(status int) bool {
	return status == http.StatusOK || status == http.StatusNoContent
}

// updateProperty implements spec.md §4.7's publish state machine: try
// (PATCH, PUT) x ({value}|{value,valueType}) x ($value, value), taking the
// first 200/204; if every variant fails, PUT the full element document.
func (c *restClient) updateProperty(ctx context.Context, submodelID, idShort string, value interface{}, valueType string) error {
	bodies := []interface{}{
		map[string]interface{}{"value": value},
		map[string]interface{}{"value": value, "valueType": valueType},
	}
	paths := []string{
		c.elementURL(submodelID, idShort) + "/$value",
		c.elementURL(submodelID, idShort) + "/value",
	}
	methods := []string{http.MethodPatch, http.MethodPut}

	var lastErr error
	for _, method := range methods {
		for _, path := range paths {
			for _, body := range bodies {
				resp, err := c.do(ctx, method, path, body)
				if err != nil {
					lastErr = err
					continue
				}
				resp.Body.Close()
				if ok2xx(resp.StatusCode) {
					return nil
				}
				lastErr = fmt.Errorf("httpaas: %s %s returned %d", method, path, resp.StatusCode)
			}
		}
	}

	if err := c.putFullElement(ctx, submodelID, idShort, value, valueType); err != nil {
		if lastErr != nil {
			return fmt.Errorf("httpaas: all PATCH/PUT variants failed (last: %v), full-document PUT also failed: %w", lastErr, err)
		}
		return err
	}
	return nil
}

func (c *restClient) putFullElement(ctx context.Context, submodelID, idShort string, value interface{}, valueType string) error {
	doc := aasmodel.Property{
		IDShort:   idShort,
		ModelType: "Property",
		ValueType: valueType,
		Value:     value,
	}
	resp, err := c.do(ctx, http.MethodPut, c.elementURL(submodelID, idShort), doc)
	if err != nil {
		return fmt.Errorf("httpaas: full-document PUT: %w", err)
	}
	defer resp.Body.Close()
	if !ok2xx(resp.StatusCode) {
		return fmt.Errorf("httpaas: full-document PUT returned %d", resp.StatusCode)
	}
	return nil
}

// getValue fetches the current value of a submodel element, trying
// /$value then /value, and returns the raw decoded JSON value.
func (c *restClient) getValue(ctx context.Context, submodelID, idShort string) (interface{}, bool, error) {
	for _, suffix := range []string{"/$value", "/value"} {
		resp, err := c.do(ctx, http.MethodGet, c.elementURL(submodelID, idShort)+suffix, nil)
		if err != nil {
			return nil, false, err
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			continue
		}
		var decoded interface{}
		err = json.NewDecoder(resp.Body).Decode(&decoded)
		resp.Body.Close()
		if err != nil {
			return nil, false, fmt.Errorf("httpaas: decode value for %s/%s: %w", submodelID, idShort, err)
		}
		return decoded, true, nil
	}
	return nil, false, nil
}

// ensureSubmodel provisions submodelID if it doesn't already exist: GET,
// and on 404 POST a minimal submodel document.
func (c *restClient) ensureSubmodel(ctx context.Context, submodelID, idShortName string) error {
	resp, err := c.do(ctx, http.MethodGet, c.submodelURL(submodelID), nil)
	if err != nil {
		return fmt.Errorf("httpaas: GET submodel %s: %w", submodelID, err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("httpaas: GET submodel %s returned %d", submodelID, resp.StatusCode)
	}

	doc := map[string]interface{}{
		"id":        submodelID,
		"idShort":   idShortName,
		"modelType": "Submodel",
	}
	createResp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/submodels", c.baseURL), doc)
	if err != nil {
		return fmt.Errorf("httpaas: POST submodel %s: %w", submodelID, err)
	}
	defer createResp.Body.Close()
	switch createResp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusConflict:
		return nil
	default:
		return fmt.Errorf("httpaas: POST submodel %s returned %d", submodelID, createResp.StatusCode)
	}
}

// ensureElement provisions a submodel element document.
func (c *restClient) ensureElement(ctx context.Context, submodelID string, el *aasmodel.Property) error {
	resp, err := c.do(ctx, http.MethodPost, c.elementsURL(submodelID), el)
	if err != nil {
		return fmt.Errorf("httpaas: POST element %s/%s: %w", submodelID, el.IDShort, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusConflict:
		return nil
	default:
		return fmt.Errorf("httpaas: POST element %s/%s returned %d", submodelID, el.IDShort, resp.StatusCode)
	}
}
