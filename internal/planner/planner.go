package planner

import (
	"context"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/errander/internal/step"
)

// Planner converts free text into a step sequence. Heuristic matchers run
// first in fixed priority order; the external oracle is the fallback for
// open-ended phrasing. Plan never fails: unmatched input yields an empty
// plan, not a fabricated guess.
type Planner struct {
	ownAddress string
	oracle     Oracle
	logger     *log.Logger
}

// New builds a planner. ownAddress is excluded when picking a notification
// target out of the text; oracle may be nil when no LLM is configured.
func New(ownAddress string, oracle Oracle) *Planner {
	return &Planner{
		ownAddress: ownAddress,
		oracle:     oracle,
		logger:     log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Plan translates text into an ordered step sequence.
func (p *Planner) Plan(ctx context.Context, text string) step.Plan {
	req := parse(text, p.ownAddress)
	for _, m := range matchers {
		if m.match(req) {
			plan := m.build(req)
			p.logger.Printf("matched %q (%d steps)", m.name, len(plan.Steps))
			return plan
		}
	}
	if p.oracle == nil {
		return step.Plan{}
	}
	raw, err := p.oracle.Complete(ctx, oraclePrompt(text))
	if err != nil {
		p.logger.Printf("oracle unavailable: %v", err)
		return step.Plan{}
	}
	plan, err := DecodeOraclePlan(raw)
	if err != nil {
		p.logger.Printf("oracle plan rejected: %v", err)
		return step.Plan{}
	}
	return plan
}

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9\-]+(?:\.[a-zA-Z0-9\-]+)+`)
	urlRe   = regexp.MustCompile(`https?://[^\s"'<>]+`)
	countRe = regexp.MustCompile(`\b(\d{1,2})\s+links?\b`)
)

// request is the parsed view of one prompt that matchers evaluate.
type request struct {
	text   string
	lower  string
	urls   []string
	emails []string
	// target is the notification address: the first extracted address that
	// is not the service's own.
	target string
}

func parse(text, ownAddress string) request {
	req := request{text: text, lower: strings.ToLower(text)}
	for _, u := range urlRe.FindAllString(text, -1) {
		req.urls = append(req.urls, strings.TrimRight(u, ".,;:)"))
	}
	req.emails = emailRe.FindAllString(text, -1)
	for _, e := range req.emails {
		if !strings.EqualFold(e, ownAddress) {
			req.target = e
			break
		}
	}
	return req
}

func (r request) has(words ...string) bool {
	for _, w := range words {
		if strings.Contains(r.lower, w) {
			return true
		}
	}
	return false
}

func (r request) firstURL() string {
	if len(r.urls) == 0 {
		return ""
	}
	return r.urls[0]
}

// matcher pairs a predicate with a plan builder. The table is evaluated in
// order and the first match wins, so the common well-defined cases never
// wait on the oracle and keep a fixed, auditable mapping.
type matcher struct {
	name  string
	match func(request) bool
	build func(request) step.Plan
}

var matchers = []matcher{
	{
		name: "forward latest message",
		match: func(r request) bool {
			return r.has("forward") && r.has("gmail", "email", "mail", "inbox") && r.target != ""
		},
		build: func(r request) step.Plan {
			return step.Plan{Steps: []step.Step{
				{Kind: step.KindForwardLatestMessage, Params: map[string]interface{}{"to": r.target}},
			}}
		},
	},
	{
		name: "news digest now",
		match: func(r request) bool {
			return r.has("news", "headlines") && r.has("email", "mail", "send") &&
				r.target != "" && !r.has("daily", "weekly", "every", "monitor", "track")
		},
		build: func(r request) step.Plan {
			return step.Plan{Steps: []step.Step{
				{Kind: step.KindSendNewsDigest, Params: map[string]interface{}{
					"topic": extractTopic(r.text),
					"to":    r.target,
				}},
			}}
		},
	},
	{
		name: "capture and notify",
		match: func(r request) bool {
			return r.has("screenshot", "screen shot", "pdf", "links") && r.firstURL() != "" &&
				!r.has("monitor", "track", "daily", "weekly")
		},
		build: func(r request) step.Plan {
			url := r.firstURL()
			plan := step.Plan{StartURL: url}
			switch {
			case r.has("links"):
				params := map[string]interface{}{"url": url}
				if m := countRe.FindStringSubmatch(r.lower); m != nil {
					if n, err := strconv.Atoi(m[1]); err == nil {
						params["count"] = n
					}
				}
				plan.Steps = append(plan.Steps, step.Step{Kind: step.KindExtractLinks, Params: params})
				if r.target != "" {
					plan.Steps = append(plan.Steps, step.Step{Kind: step.KindNotifyWithText, Params: map[string]interface{}{"to": r.target}})
				}
			case r.has("pdf"):
				plan.Steps = append(plan.Steps, step.Step{Kind: step.KindCapturePDF, Params: map[string]interface{}{"url": url}})
				if r.target != "" {
					plan.Steps = append(plan.Steps, step.Step{Kind: step.KindNotifyWithArtifact, Params: map[string]interface{}{"to": r.target}})
				}
			default:
				plan.Steps = append(plan.Steps, step.Step{Kind: step.KindCaptureScreenshot, Params: map[string]interface{}{"url": url}})
				if r.target != "" {
					plan.Steps = append(plan.Steps, step.Step{Kind: step.KindNotifyWithArtifact, Params: map[string]interface{}{"to": r.target}})
				}
			}
			return plan
		},
	},
	{
		name: "competitor watch",
		match: func(r request) bool {
			return r.has("competitor") && r.firstURL() != "" && r.target != ""
		},
		build: func(r request) step.Plan {
			return step.Plan{Steps: []step.Step{
				{Kind: step.KindAddCompetitorWatch, Params: map[string]interface{}{
					"feeds": r.urls,
					"to":    r.target,
				}},
			}}
		},
	},
	{
		name: "job alert",
		match: func(r request) bool {
			return r.has("job alert", "job opening", "job postings", "jobs") &&
				r.firstURL() != "" && r.target != ""
		},
		build: func(r request) step.Plan {
			keywords := splitWords(extractTopic(r.text))
			return step.Plan{Steps: []step.Step{
				{Kind: step.KindAddJobAlert, Params: map[string]interface{}{
					"keywords": keywords,
					"feeds":    r.urls,
					"to":       r.target,
				}},
			}}
		},
	},
	{
		name: "page monitor",
		match: func(r request) bool {
			return r.has("monitor", "track", "watch") && r.firstURL() != "" && r.target != ""
		},
		build: func(r request) step.Plan {
			return step.Plan{Steps: []step.Step{
				{Kind: step.KindAddMonitor, Params: map[string]interface{}{
					"url": r.firstURL(),
					"to":  r.target,
				}},
			}}
		},
	},
	{
		name: "recurring briefing",
		match: func(r request) bool {
			return r.has("daily", "weekly", "every day", "every week", "each morning") &&
				r.has("news", "briefing", "digest", "headlines") && r.target != ""
		},
		build: func(r request) step.Plan {
			frequency := "daily"
			if r.has("weekly", "every week") {
				frequency = "weekly"
			}
			return step.Plan{Steps: []step.Step{
				{Kind: step.KindAddBriefing, Params: map[string]interface{}{
					"topic":     extractTopic(r.text),
					"to":        r.target,
					"frequency": frequency,
				}},
			}}
		},
	},
	{
		name: "structured extraction",
		match: func(r request) bool {
			return r.has("extract", "csv", "scrape") && r.firstURL() != ""
		},
		build: func(r request) step.Plan {
			url := r.firstURL()
			params := map[string]interface{}{"url": url}
			if m := countRe.FindStringSubmatch(r.lower); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					params["count"] = n
				}
			}
			plan := step.Plan{StartURL: url, Steps: []step.Step{{Kind: step.KindExtractLinks, Params: params}}}
			if r.target != "" {
				plan.Steps = append(plan.Steps, step.Step{Kind: step.KindNotifyWithText, Params: map[string]interface{}{"to": r.target}})
			}
			return plan
		},
	},
}

var topicPrepositions = []string{" about ", " regarding ", " on ", " for "}

var topicCues = []string{" to ", " and ", " from ", " every", " daily", " weekly", " each ", ",", "."}

// extractTopic picks the substring between a topic preposition and a
// sentence-ending cue, e.g. "news about AI safety to a@b.com" -> "AI safety".
// Matching runs on a lowercased copy, but the slice comes from the original
// text so the topic keeps its casing in digests and briefings.
func extractTopic(text string) string {
	lower := strings.ToLower(text)
	for _, prep := range topicPrepositions {
		idx := strings.Index(lower, prep)
		if idx < 0 {
			continue
		}
		start := idx + len(prep)
		rest := lower[start:]
		end := len(rest)
		for _, cue := range topicCues {
			if i := strings.Index(rest, cue); i >= 0 && i < end {
				end = i
			}
		}
		topic := strings.TrimSpace(text[start : start+end])
		if topic != "" {
			return topic
		}
	}
	return ""
}

func splitWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
