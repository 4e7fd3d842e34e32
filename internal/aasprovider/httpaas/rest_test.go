package httpaas

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBaseURL(t *testing.T) {
	cases := map[string]string{
		"http://host:8081":             "http://host:8081/aas",
		"http://host:8081/":            "http://host:8081/aas",
		"http://host:8081/aas":         "http://host:8081/aas",
		"http://host:8081/submodels":   "http://host:8081/aas",
		"http://host:8081/aas/":        "http://host:8081/aas",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeBaseURL(in), "input %s", in)
	}
}

func TestEncodeIdentifier(t *testing.T) {
	c := &restClient{encode: true}
	encoded := c.encodeIdentifier("urn:example:sm:1")
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "urn:example:sm:1", string(decoded))

	c.encode = false
	assert.Equal(t, "urn:example:sm:1", c.encodeIdentifier("urn:example:sm:1"))
}

func TestUpdatePropertyFirstVariantSucceeds(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.EncodeIdentifiers = false
	client := newRESTClient(cfg)

	err := client.updateProperty(context.Background(), "sm1", "Temperature", 21.5, "xs:double")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Contains(t, gotPath, "/submodel-elements/Temperature/$value")
}

func TestUpdatePropertyFallsBackToFullDocumentPUT(t *testing.T) {
	var fullDocumentCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/aas/submodels/sm1/submodel-elements/Temperature" && r.Method == http.MethodPut {
			fullDocumentCalls++
			var doc map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
			assert.Equal(t, "Temperature", doc["idShort"])
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.EncodeIdentifiers = false
	client := newRESTClient(cfg)

	err := client.updateProperty(context.Background(), "sm1", "Temperature", 21.5, "xs:double")
	require.NoError(t, err)
	assert.Equal(t, 1, fullDocumentCalls)
}

func TestUpdatePropertyAllVariantsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.EncodeIdentifiers = false
	client := newRESTClient(cfg)

	err := client.updateProperty(context.Background(), "sm1", "Temperature", 21.5, "xs:double")
	assert.Error(t, err)
}

func TestGetValueTriesDollarValueThenValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/aas/submodels/sm1/submodel-elements/Temperature/$value" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Path == "/aas/submodels/sm1/submodel-elements/Temperature/value" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("42.0"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.EncodeIdentifiers = false
	client := newRESTClient(cfg)

	value, found, err := client.getValue(context.Background(), "sm1", "Temperature")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 42.0, value)
}

func TestEnsureSubmodelCreatesOn404(t *testing.T) {
	var postSeen bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost:
			postSeen = true
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.EncodeIdentifiers = false
	client := newRESTClient(cfg)

	err := client.ensureSubmodel(context.Background(), "sm1", "Sm1")
	require.NoError(t, err)
	assert.True(t, postSeen)
}

func TestEnsureSubmodelSkipsCreateWhenExists(t *testing.T) {
	var postSeen bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
		case http.MethodPost:
			postSeen = true
		}
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.EncodeIdentifiers = false
	client := newRESTClient(cfg)

	err := client.ensureSubmodel(context.Background(), "sm1", "Sm1")
	require.NoError(t, err)
	assert.False(t, postSeen)
}

func TestRESTClientHonorsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.Timeout = 1 * time.Millisecond
	client := newRESTClient(cfg)

	_, _, err := client.getValue(context.Background(), "sm1", "Temperature")
	assert.Error(t, err, "a client-side timeout should surface as an error, not a silent not-found")
}
