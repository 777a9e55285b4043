package step

import (
	"fmt"
	"strings"
)

// Kind identifies the action a step performs.
type Kind string

const (
	KindCaptureScreenshot    Kind = "capture_screenshot"
	KindCapturePDF           Kind = "capture_pdf"
	KindExtractLinks         Kind = "extract_links"
	KindGenerateImage        Kind = "generate_image"
	KindNotifyWithArtifact   Kind = "notify_with_artifact"
	KindNotifyWithText       Kind = "notify_with_text"
	KindSendNewsDigest       Kind = "send_news_digest"
	KindForwardLatestMessage Kind = "forward_latest_message"
	KindAddMonitor           Kind = "add_monitor"
	KindAddBriefing          Kind = "add_briefing"
	KindAddCompetitorWatch   Kind = "add_competitor_watch"
	KindAddJobAlert          Kind = "add_job_alert"
)

// requiredParams maps each known kind to the parameter keys a handler needs.
// Validation happens at dispatch, not at parse time: a malformed step fails
// only when it is reached.
var requiredParams = map[Kind][]string{
	KindCaptureScreenshot:    {"url"},
	KindCapturePDF:           {"url"},
	KindExtractLinks:         {"url"},
	KindGenerateImage:        {"prompt"},
	KindNotifyWithArtifact:   {"to"},
	KindNotifyWithText:       {"to"},
	KindSendNewsDigest:       {"topic", "to"},
	KindForwardLatestMessage: {"to"},
	KindAddMonitor:           {"url", "to"},
	KindAddBriefing:          {"topic", "to"},
	KindAddCompetitorWatch:   {"feeds", "to"},
	KindAddJobAlert:          {"keywords", "feeds", "to"},
}

// Kinds returns the closed step vocabulary.
func Kinds() []Kind {
	out := make([]Kind, 0, len(requiredParams))
	for k := range requiredParams {
		out = append(out, k)
	}
	return out
}

// ErrMissingParam indicates a step is missing a required parameter.
var ErrMissingParam = fmt.Errorf("missing required parameter")

// Step is a single typed action with parameters. Params values come from
// JSON, so they are held loosely typed and read through the accessors below.
type Step struct {
	Kind   Kind                   `json:"kind"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Known reports whether the step's kind is part of the vocabulary.
func (s Step) Known() bool {
	_, ok := requiredParams[s.Kind]
	return ok
}

// Validate checks the required parameters for the step's kind are present
// and non-empty. Unknown kinds validate trivially; the executor skips them.
func (s Step) Validate() error {
	for _, key := range requiredParams[s.Kind] {
		switch key {
		case "feeds", "keywords":
			if len(s.StringSlice(key)) == 0 {
				return fmt.Errorf("%w: %s requires %q", ErrMissingParam, s.Kind, key)
			}
		default:
			if strings.TrimSpace(s.String(key)) == "" {
				return fmt.Errorf("%w: %s requires %q", ErrMissingParam, s.Kind, key)
			}
		}
	}
	return nil
}

// String returns the named parameter as a string, or "" when absent.
func (s Step) String(key string) string {
	if v, ok := s.Params[key].(string); ok {
		return v
	}
	return ""
}

// Int returns the named parameter as an int, falling back to def. JSON
// numbers decode as float64, so both forms are accepted.
func (s Step) Int(key string, def int) int {
	switch v := s.Params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// StringSlice returns the named parameter as a list of strings. A plain
// comma-separated string is accepted as well, since heuristic builders and
// the oracle disagree on the encoding.
func (s Step) StringSlice(key string) []string {
	var out []string
	switch v := s.Params[key].(type) {
	case []string:
		out = v
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Plan is an ordered step sequence produced from free text. Plans are not
// persisted; only add_* steps leave durable residue.
type Plan struct {
	StartURL string `json:"start_url,omitempty"`
	Steps    []Step `json:"steps"`
}

// Empty reports whether the plan carries no steps (the "could not
// understand" result).
func (p Plan) Empty() bool { return len(p.Steps) == 0 }
