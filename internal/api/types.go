package api

import (
	"github.com/mapsmith/mapsmith/internal/chain"
	"github.com/mapsmith/mapsmith/internal/mapping"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DSLRequest carries DSL text.
type DSLRequest struct {
	Text string `json:"text"`
}

// DSLResponse carries DSL text.
type DSLResponse struct {
	Text string `json:"text"`
}

// ParseResponse is the reply to POST /api/dsl/parse.
type ParseResponse struct {
	Mappings []mapping.Mapping    `json:"mappings"`
	Errors   []mapping.Diagnostic `json:"errors"`
}

// GenerateRequest is the body of POST /api/dsl/generate.
type GenerateRequest struct {
	Mappings []mapping.Mapping `json:"mappings"`
}

// ScriptResponse is the reply to GET /api/maps/{id}/script.
type ScriptResponse struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// CheckRequest is the body of POST /api/chains/check.
type CheckRequest struct {
	Links []chain.Link `json:"links"`
}

// RunRequest is the body of POST /api/chains/{id}/run. An empty input uses
// the chain's test input.
type RunRequest struct {
	Input string `json:"input"`
}
