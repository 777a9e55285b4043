package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/mohammad-safakhou/errander/internal/step"
)

const ownAddress = "svc@errander.example"

func plan(t *testing.T, oracle Oracle, text string) step.Plan {
	t.Helper()
	return New(ownAddress, oracle).Plan(context.Background(), text)
}

func TestScreenshotAndNotify(t *testing.T) {
	p := plan(t, nil, "Take a screenshot of https://example.com and email it to a@b.com")
	if len(p.Steps) != 2 {
		t.Fatalf("want 2 steps, got %d: %+v", len(p.Steps), p.Steps)
	}
	if p.Steps[0].Kind != step.KindCaptureScreenshot {
		t.Fatalf("step 0 kind: %s", p.Steps[0].Kind)
	}
	if got := p.Steps[0].String("url"); got != "https://example.com" {
		t.Fatalf("step 0 url: %q", got)
	}
	if p.Steps[1].Kind != step.KindNotifyWithArtifact {
		t.Fatalf("step 1 kind: %s", p.Steps[1].Kind)
	}
	if got := p.Steps[1].String("to"); got != "a@b.com" {
		t.Fatalf("step 1 to: %q", got)
	}
	if p.StartURL != "https://example.com" {
		t.Fatalf("start url: %q", p.StartURL)
	}
}

func TestOwnAddressNeverTargeted(t *testing.T) {
	p := plan(t, nil, "screenshot https://example.com, send from "+ownAddress+" to bob@y.com")
	if len(p.Steps) != 2 {
		t.Fatalf("want 2 steps, got %d", len(p.Steps))
	}
	if got := p.Steps[1].String("to"); got != "bob@y.com" {
		t.Fatalf("target must skip the service address, got %q", got)
	}
}

func TestForwardLatestMessage(t *testing.T) {
	p := plan(t, nil, "forward my latest email to bob@y.com")
	if len(p.Steps) != 1 || p.Steps[0].Kind != step.KindForwardLatestMessage {
		t.Fatalf("got %+v", p.Steps)
	}
	if got := p.Steps[0].String("to"); got != "bob@y.com" {
		t.Fatalf("to: %q", got)
	}
}

func TestExtractLinksWithCount(t *testing.T) {
	p := plan(t, nil, "grab 5 links from https://example.com/blog and email them to a@b.com")
	if len(p.Steps) != 2 {
		t.Fatalf("want 2 steps, got %d: %+v", len(p.Steps), p.Steps)
	}
	if p.Steps[0].Kind != step.KindExtractLinks {
		t.Fatalf("step 0 kind: %s", p.Steps[0].Kind)
	}
	if got := p.Steps[0].Int("count", 0); got != 5 {
		t.Fatalf("count: %d", got)
	}
	if p.Steps[1].Kind != step.KindNotifyWithText {
		t.Fatalf("step 1 kind: %s", p.Steps[1].Kind)
	}
}

func TestPDFWithoutTargetIsSingleStep(t *testing.T) {
	p := plan(t, nil, "save https://example.com/report as pdf")
	if len(p.Steps) != 1 || p.Steps[0].Kind != step.KindCapturePDF {
		t.Fatalf("got %+v", p.Steps)
	}
}

func TestMonitorTakesPriorityOverCapture(t *testing.T) {
	p := plan(t, nil, "monitor https://example.com/pricing and alert a@b.com")
	if len(p.Steps) != 1 || p.Steps[0].Kind != step.KindAddMonitor {
		t.Fatalf("got %+v", p.Steps)
	}
	if got := p.Steps[0].String("url"); got != "https://example.com/pricing" {
		t.Fatalf("url: %q", got)
	}
}

func TestWeeklyBriefingNotDigestNow(t *testing.T) {
	p := plan(t, nil, "send me weekly news about rust to a@b.com")
	if len(p.Steps) != 1 || p.Steps[0].Kind != step.KindAddBriefing {
		t.Fatalf("got %+v", p.Steps)
	}
	if got := p.Steps[0].String("topic"); got != "rust" {
		t.Fatalf("topic: %q", got)
	}
	if got := p.Steps[0].String("frequency"); got != "weekly" {
		t.Fatalf("frequency: %q", got)
	}
}

func TestDigestNow(t *testing.T) {
	p := plan(t, nil, "email me the news about AI safety to a@b.com")
	if len(p.Steps) != 1 || p.Steps[0].Kind != step.KindSendNewsDigest {
		t.Fatalf("got %+v", p.Steps)
	}
	if got := p.Steps[0].String("topic"); got != "AI safety" {
		t.Fatalf("topic: %q", got)
	}
}

func TestTopicKeepsOriginalCasing(t *testing.T) {
	p := plan(t, nil, "send me daily news about OpenAI DevDay to a@b.com")
	if len(p.Steps) != 1 || p.Steps[0].Kind != step.KindAddBriefing {
		t.Fatalf("got %+v", p.Steps)
	}
	if got := p.Steps[0].String("topic"); got != "OpenAI DevDay" {
		t.Fatalf("topic must keep the prompt's casing, got %q", got)
	}
}

func TestJobAlert(t *testing.T) {
	p := plan(t, nil, "add a job alert for golang engineer roles from https://jobs.example.com/rss to a@b.com")
	if len(p.Steps) != 1 || p.Steps[0].Kind != step.KindAddJobAlert {
		t.Fatalf("got %+v", p.Steps)
	}
	st := p.Steps[0]
	if got := st.StringSlice("keywords"); len(got) != 3 || got[0] != "golang" {
		t.Fatalf("keywords: %v", got)
	}
	if got := st.StringSlice("feeds"); len(got) != 1 || got[0] != "https://jobs.example.com/rss" {
		t.Fatalf("feeds: %v", got)
	}
}

func TestCompetitorWatch(t *testing.T) {
	p := plan(t, nil, "watch competitor blogs https://a.example/feed https://b.example/feed and brief a@b.com")
	if len(p.Steps) != 1 || p.Steps[0].Kind != step.KindAddCompetitorWatch {
		t.Fatalf("got %+v", p.Steps)
	}
	if got := p.Steps[0].StringSlice("feeds"); len(got) != 2 {
		t.Fatalf("feeds: %v", got)
	}
}

func TestNoMatchNoOracleIsEmpty(t *testing.T) {
	p := plan(t, nil, "make me a sandwich")
	if !p.Empty() {
		t.Fatalf("expected empty plan, got %+v", p.Steps)
	}
}

// stubOracle returns a canned completion.
type stubOracle struct {
	raw string
	err error
}

func (s stubOracle) Complete(ctx context.Context, prompt string) (string, error) {
	return s.raw, s.err
}

func TestOracleFallback(t *testing.T) {
	oracle := stubOracle{raw: `Sure, here is the plan:
[{"kind":"generate_image","params":{"prompt":"autumn haiku card"}},
 {"kind":"notify_with_artifact","params":{"to":"a@b.com"}}]`}
	p := plan(t, oracle, "compose a haiku card about autumn for a@b.com, make it pretty")
	if len(p.Steps) != 2 {
		t.Fatalf("want 2 steps, got %+v", p.Steps)
	}
	if p.Steps[0].Kind != step.KindGenerateImage || p.Steps[1].Kind != step.KindNotifyWithArtifact {
		t.Fatalf("kinds: %s, %s", p.Steps[0].Kind, p.Steps[1].Kind)
	}
}

func TestOracleErrorYieldsEmptyPlan(t *testing.T) {
	oracle := stubOracle{err: errors.New("rate limited")}
	p := plan(t, oracle, "compose a haiku card about autumn, make it pretty")
	if !p.Empty() {
		t.Fatalf("expected empty plan on oracle failure, got %+v", p.Steps)
	}
}

func TestOracleGarbageYieldsEmptyPlan(t *testing.T) {
	oracle := stubOracle{raw: `[{"kind":"rm_rf_slash","params":{}}]`}
	p := plan(t, oracle, "compose a haiku card about autumn, make it pretty")
	if !p.Empty() {
		t.Fatalf("unvalidated oracle output must be dropped, got %+v", p.Steps)
	}
}
