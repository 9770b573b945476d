// Package reconcile turns what a session produced into at most one document.
//
// Structured output, when present, is authoritative. Otherwise the newest text chunk
// that looks like JSON is parsed, first from its fenced code blocks and then as a
// whole. A session that produced neither yields no document, which is not an error.
package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/nick134920/ClaudeFlow/internal/blocks"
)

// Input is the reduced session output.
type Input struct {
	Structured json.RawMessage
	Texts      []string
}

// MalformedOutputError reports output that was selected as the document but does not
// have the document shape. It is never retried.
type MalformedOutputError struct {
	Source string // "structured" or "text"
	Reason string
	Err    error
}

func (e *MalformedOutputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s output: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s output: %s", e.Source, e.Reason)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

var fencePattern = regexp.MustCompile("```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")

// Reconciler selects and parses the document of a session.
type Reconciler struct {
	logger *zap.Logger
}

// New constructs a Reconciler.
func New(logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{logger: logger}
}

// Reconcile returns the session's document, or nil with a nil error when the session
// produced nothing that could be one.
func (r *Reconciler) Reconcile(in Input) (*blocks.Document, error) {
	if hasStructured(in.Structured) {
		r.logger.Debug("using structured output", zap.Int("bytes", len(in.Structured)))
		return r.fromStructured(in.Structured)
	}

	candidate, idx, ok := selectCandidate(in.Texts)
	if !ok {
		r.logger.Info("no document in session output", zap.Int("text_chunks", len(in.Texts)))
		return nil, nil
	}
	r.logger.Debug("using text candidate", zap.Int("chunk", idx), zap.Int("length", len(candidate)))
	return r.fromText(candidate)
}

// hasStructured treats null, {} and [] as no structured output.
func hasStructured(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err == nil && len(obj) == 0 {
		return false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(trimmed, &arr); err == nil && len(arr) == 0 {
		return false
	}
	return true
}

func (r *Reconciler) fromStructured(raw json.RawMessage) (*blocks.Document, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, &MalformedOutputError{Source: "structured", Reason: "not a JSON object", Err: err}
	}
	doc, err := blocks.DecodeDocument(obj)
	if err != nil {
		return nil, &MalformedOutputError{Source: "structured", Reason: "not a document", Err: err}
	}
	return &doc, nil
}

// selectCandidate scans newest to oldest and stops at the first chunk that either
// carries a json fence or starts with an object.
func selectCandidate(texts []string) (string, int, bool) {
	for i := len(texts) - 1; i >= 0; i-- {
		t := texts[i]
		if strings.Contains(t, "```json") || strings.HasPrefix(strings.TrimSpace(t), "{") {
			return t, i, true
		}
	}
	return "", -1, false
}

func (r *Reconciler) fromText(text string) (*blocks.Document, error) {
	var lastErr error
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		doc, err := parseDocument(m[1])
		if err == nil {
			return doc, nil
		}
		r.logger.Debug("fenced block rejected", zap.Error(err))
		lastErr = err
	}

	doc, err := parseDocument(text)
	if err == nil {
		return doc, nil
	}
	if lastErr == nil {
		lastErr = err
	}
	return nil, &MalformedOutputError{Source: "text", Reason: "no fenced block or whole chunk parses as a document", Err: lastErr}
}

func parseDocument(s string) (*blocks.Document, error) {
	obj, err := decodeObject([]byte(strings.TrimSpace(s)))
	if err != nil {
		return nil, err
	}
	if _, ok := obj["title"]; !ok {
		return nil, errors.New(`missing "title"`)
	}
	if _, ok := obj["blocks"]; !ok {
		return nil, errors.New(`missing "blocks"`)
	}
	doc, err := blocks.DecodeDocument(obj)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// decodeObject parses a JSON object leniently: comments and trailing commas are
// tolerated since models emit both.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if obj == nil {
		return nil, errors.New("json value is not an object")
	}
	return obj, nil
}
