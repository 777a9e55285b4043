package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mohammad-safakhou/errander/internal/step"
)

// Oracle is the external language-model fallback used when no heuristic
// matches. It returns raw model text; decoding and validation happen here.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

//go:embed steps_schema.json
var stepsSchemaJSON string

var (
	compileOnce sync.Once
	stepsSchema *jsonschema.Schema
	compileErr  error
)

// StepsSchema returns the compiled JSON Schema constraining oracle output.
func StepsSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("steps_schema.json", strings.NewReader(stepsSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("steps_schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile steps schema: %w", err)
			return
		}
		stepsSchema = schema
	})
	return stepsSchema, compileErr
}

// DecodeOraclePlan parses and validates raw oracle output into a Plan. Any
// failure (no JSON, schema violation, unknown kind) is an error; callers
// treat it identically to parse-ambiguity and never partially trust the
// result. A bare step object is promoted to a one-element sequence, so the
// executor never receives an unwrapped object.
func DecodeOraclePlan(raw string) (step.Plan, error) {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return step.Plan{}, fmt.Errorf("no JSON found in oracle response")
	}

	schema, err := StepsSchema()
	if err != nil {
		return step.Plan{}, err
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return step.Plan{}, fmt.Errorf("oracle response is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return step.Plan{}, fmt.Errorf("oracle response does not match step schema: %w", err)
	}

	var steps []step.Step
	if strings.HasPrefix(strings.TrimSpace(jsonStr), "{") {
		var single step.Step
		if err := json.Unmarshal([]byte(jsonStr), &single); err != nil {
			return step.Plan{}, fmt.Errorf("decode step: %w", err)
		}
		steps = []step.Step{single}
	} else {
		if err := json.Unmarshal([]byte(jsonStr), &steps); err != nil {
			return step.Plan{}, fmt.Errorf("decode steps: %w", err)
		}
	}

	for _, s := range steps {
		if !s.Known() {
			return step.Plan{}, fmt.Errorf("unknown step kind %q in oracle response", s.Kind)
		}
	}
	return step.Plan{Steps: steps}, nil
}

// extractJSON returns the first balanced JSON array or object in text. The
// oracle wraps payloads in prose and code fences often enough that plain
// unmarshalling is not reliable. Brackets inside string values (and escaped
// quotes inside them) do not count towards the balance.
func extractJSON(text string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '[', '{':
			if depth == 0 {
				start = i
			}
			depth++
		case ']', '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start >= 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// oraclePrompt builds the closed-vocabulary planning prompt. The allowed
// kinds are sent as an explicit schema so the oracle cannot smuggle
// unsupported step kinds into the executor.
func oraclePrompt(text string) string {
	kinds := step.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	sort.Strings(names)
	return fmt.Sprintf(`You translate a user instruction into a JSON array of workflow steps.

ALLOWED STEP KINDS (no others are accepted):
%s

Each step is {"kind": "<kind>", "params": {...}}. Required params:
- capture_screenshot, capture_pdf, extract_links: "url"
- generate_image: "prompt"
- notify_with_artifact, notify_with_text, forward_latest_message: "to" (email address)
- send_news_digest: "topic", "to"
- add_monitor: "url", "to"
- add_briefing: "topic", "to" (optional "frequency": daily|weekly)
- add_competitor_watch: "feeds" (array of URLs), "to"
- add_job_alert: "keywords" (array), "feeds" (array of URLs), "to"

USER INSTRUCTION: %s

Respond with ONLY the JSON array, no prose.`, strings.Join(names, ", "), text)
}
