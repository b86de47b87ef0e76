package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

// OpenAPIHandler serves the API description as YAML and as JSON.
type OpenAPIHandler struct {
	openAPIPath string

	once    sync.Once
	yamlDoc []byte
	jsonDoc []byte
	loadErr error
}

// NewOpenAPIHandler creates a handler for the YAML document at openAPIPath. The file is
// read on first request and cached.
func NewOpenAPIHandler(openAPIPath string) *OpenAPIHandler {
	abs, err := filepath.Abs(filepath.Clean(openAPIPath))
	if err != nil {
		abs = openAPIPath
	}
	return &OpenAPIHandler{openAPIPath: abs}
}

// RegisterRoutes registers OpenAPI routes
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/openapi.yaml", h.ServeYAML).Methods("GET")
	r.HandleFunc("/api/v1/openapi.json", h.ServeJSON).Methods("GET")
}

func (h *OpenAPIHandler) load() error {
	h.once.Do(func() {
		data, err := os.ReadFile(h.openAPIPath)
		if err != nil {
			h.loadErr = fmt.Errorf("failed to read OpenAPI document: %w", err)
			return
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			h.loadErr = fmt.Errorf("failed to parse OpenAPI document: %w", err)
			return
		}
		js, err := json.Marshal(doc)
		if err != nil {
			h.loadErr = fmt.Errorf("failed to convert OpenAPI document: %w", err)
			return
		}
		h.yamlDoc, h.jsonDoc = data, js
	})
	return h.loadErr
}

// ServeYAML serves the OpenAPI spec in YAML format
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	h.serve(w, "application/x-yaml", func() []byte { return h.yamlDoc })
}

// ServeJSON serves the OpenAPI spec in JSON format
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	h.serve(w, "application/json", func() []byte { return h.jsonDoc })
}

func (h *OpenAPIHandler) serve(w http.ResponseWriter, contentType string, body func() []byte) {
	if err := h.load(); err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "OpenAPI specification not found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(body())
}
