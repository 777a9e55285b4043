package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/errander/internal/artifact"
	"github.com/mohammad-safakhou/errander/internal/capability"
	"github.com/mohammad-safakhou/errander/internal/jobs"
	"github.com/mohammad-safakhou/errander/internal/step"
)

type stubBrowser struct {
	shot  []byte
	pdf   []byte
	links []capability.Link
	err   error
}

func (b *stubBrowser) Screenshot(ctx context.Context, url string) ([]byte, error) {
	return b.shot, b.err
}
func (b *stubBrowser) PDF(ctx context.Context, url string) ([]byte, error) { return b.pdf, b.err }
func (b *stubBrowser) Links(ctx context.Context, url string) ([]capability.Link, error) {
	return b.links, b.err
}
func (b *stubBrowser) FetchHTML(ctx context.Context, url string) (string, error) { return "", b.err }

type stubMail struct {
	sent []capability.Message
	err  error
}

func (m *stubMail) Send(ctx context.Context, msg capability.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type stubMailbox struct {
	raw []byte
	err error
}

func (m *stubMailbox) Latest(ctx context.Context) ([]byte, error) { return m.raw, m.err }

type stubImages struct {
	res capability.ImageResult
	err error
}

func (s stubImages) GenerateImage(ctx context.Context, prompt string) (capability.ImageResult, error) {
	return s.res, s.err
}

func testDeps(t *testing.T, caps *capability.Set) Deps {
	t.Helper()
	arts, err := artifact.NewStore(t.TempDir(), "/static")
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	store, err := jobs.Open(t.TempDir())
	if err != nil {
		t.Fatalf("job store: %v", err)
	}
	return Deps{Caps: caps, Jobs: store, Artifacts: arts}
}

func runSync(t *testing.T, d Deps, steps ...step.Step) *RunRecord {
	t.Helper()
	exec := New(NewMemoryRepository(), Handlers(d))
	rec, err := exec.ExecuteSync(context.Background(), step.Plan{Steps: steps})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	return rec
}

func TestCaptureThenNotify(t *testing.T) {
	mail := &stubMail{}
	d := testDeps(t, &capability.Set{
		Browser: &stubBrowser{shot: []byte("png-bytes")},
		Mail:    mail,
	})
	rec := runSync(t, d,
		step.Step{Kind: step.KindCaptureScreenshot, Params: map[string]interface{}{"url": "https://example.com"}},
		step.Step{Kind: step.KindNotifyWithArtifact, Params: map[string]interface{}{"to": "a@b.com"}},
	)
	if rec.Status != StatusDone {
		t.Fatalf("status: %s, log: %v", rec.Status, rec.Log)
	}
	if len(rec.Artifacts) != 1 || rec.Artifacts[0].SourceURL != "https://example.com" {
		t.Fatalf("artifacts: %+v", rec.Artifacts)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("sent: %d", len(mail.sent))
	}
	msg := mail.sent[0]
	if msg.To != "a@b.com" || msg.Attachment == nil || string(msg.Attachment.Data) != "png-bytes" {
		t.Fatalf("message: %+v", msg)
	}
	if rec.FinishedAt == nil {
		t.Fatalf("terminal record must carry finished_at")
	}
}

func TestStepFaultAbortsRemainder(t *testing.T) {
	mail := &stubMail{}
	d := testDeps(t, &capability.Set{
		Browser: &stubBrowser{err: errors.New("net::ERR_NAME_NOT_RESOLVED")},
		Mail:    mail,
	})
	rec := runSync(t, d,
		step.Step{Kind: step.KindCaptureScreenshot, Params: map[string]interface{}{"url": "https://bad.invalid"}},
		step.Step{Kind: step.KindNotifyWithArtifact, Params: map[string]interface{}{"to": "a@b.com"}},
	)
	if rec.Status != StatusError {
		t.Fatalf("status: %s", rec.Status)
	}
	if len(mail.sent) != 0 {
		t.Fatalf("later steps must not run after a fault, sent %d", len(mail.sent))
	}
	if !strings.Contains(strings.Join(rec.Log, "\n"), "ERR_NAME_NOT_RESOLVED") {
		t.Fatalf("fault missing from log: %v", rec.Log)
	}
}

func TestUnknownKindSkippedRunStillDone(t *testing.T) {
	d := testDeps(t, &capability.Set{})
	rec := runSync(t, d,
		step.Step{Kind: "teleport", Params: map[string]interface{}{"to": "mars"}},
	)
	if rec.Status != StatusDone {
		t.Fatalf("status: %s", rec.Status)
	}
	if !strings.Contains(strings.Join(rec.Log, "\n"), `unknown step kind "teleport"`) {
		t.Fatalf("skip missing from log: %v", rec.Log)
	}
}

func TestUnknownKindBetweenKnownSteps(t *testing.T) {
	mail := &stubMail{}
	d := testDeps(t, &capability.Set{
		Browser: &stubBrowser{links: []capability.Link{{Href: "https://example.com/a", Text: "A"}}},
		Mail:    mail,
	})
	rec := runSync(t, d,
		step.Step{Kind: step.KindExtractLinks, Params: map[string]interface{}{"url": "https://example.com"}},
		step.Step{Kind: "teleport"},
		step.Step{Kind: step.KindNotifyWithText, Params: map[string]interface{}{"to": "a@b.com"}},
	)
	if rec.Status != StatusDone {
		t.Fatalf("status: %s, log: %v", rec.Status, rec.Log)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("notify must still run after a skipped step, sent %d", len(mail.sent))
	}
	if !strings.Contains(mail.sent[0].Body, "https://example.com/a") {
		t.Fatalf("body: %q", mail.sent[0].Body)
	}
}

func TestNotifyWithoutArtifactFaults(t *testing.T) {
	d := testDeps(t, &capability.Set{Mail: &stubMail{}})
	rec := runSync(t, d,
		step.Step{Kind: step.KindNotifyWithArtifact, Params: map[string]interface{}{"to": "a@b.com"}},
	)
	if rec.Status != StatusError {
		t.Fatalf("status: %s", rec.Status)
	}
	if !strings.Contains(strings.Join(rec.Log, "\n"), "no artifact in context") {
		t.Fatalf("log: %v", rec.Log)
	}
}

func TestMissingParamFaults(t *testing.T) {
	d := testDeps(t, &capability.Set{Browser: &stubBrowser{}})
	rec := runSync(t, d,
		step.Step{Kind: step.KindCaptureScreenshot, Params: map[string]interface{}{}},
	)
	if rec.Status != StatusError {
		t.Fatalf("status: %s", rec.Status)
	}
}

func TestUnconfiguredCapabilityFaults(t *testing.T) {
	d := testDeps(t, &capability.Set{})
	rec := runSync(t, d,
		step.Step{Kind: step.KindForwardLatestMessage, Params: map[string]interface{}{"to": "a@b.com"}},
	)
	if rec.Status != StatusError {
		t.Fatalf("status: %s", rec.Status)
	}
	if !strings.Contains(strings.Join(rec.Log, "\n"), "capability not configured") {
		t.Fatalf("log: %v", rec.Log)
	}
}

func TestForwardLatestMessage(t *testing.T) {
	mail := &stubMail{}
	d := testDeps(t, &capability.Set{
		Mail:    mail,
		Mailbox: &stubMailbox{raw: []byte("Subject: hello\r\n\r\nworld")},
	})
	rec := runSync(t, d,
		step.Step{Kind: step.KindForwardLatestMessage, Params: map[string]interface{}{"to": "a@b.com"}},
	)
	if rec.Status != StatusDone {
		t.Fatalf("status: %s, log: %v", rec.Status, rec.Log)
	}
	if len(mail.sent) != 1 || !strings.Contains(mail.sent[0].Body, "world") {
		t.Fatalf("sent: %+v", mail.sent)
	}
}

func TestGenerateImageInlinePayload(t *testing.T) {
	d := testDeps(t, &capability.Set{
		Images: stubImages{res: capability.ImageResult{Data: []byte("inline-png")}},
	})
	rec := runSync(t, d,
		step.Step{Kind: step.KindGenerateImage, Params: map[string]interface{}{"prompt": "a red fox"}},
	)
	if rec.Status != StatusDone {
		t.Fatalf("status: %s, log: %v", rec.Status, rec.Log)
	}
	if len(rec.Artifacts) != 1 {
		t.Fatalf("artifacts: %+v", rec.Artifacts)
	}
	data, err := os.ReadFile(rec.Artifacts[0].Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "inline-png" {
		t.Fatalf("artifact bytes: %q", data)
	}
}

func TestGenerateImageHostedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hosted-png"))
	}))
	defer srv.Close()

	d := testDeps(t, &capability.Set{
		Images: stubImages{res: capability.ImageResult{URL: srv.URL + "/img.png"}},
	})
	rec := runSync(t, d,
		step.Step{Kind: step.KindGenerateImage, Params: map[string]interface{}{"prompt": "a red fox"}},
	)
	if rec.Status != StatusDone {
		t.Fatalf("status: %s, log: %v", rec.Status, rec.Log)
	}
	if len(rec.Artifacts) != 1 {
		t.Fatalf("artifacts: %+v", rec.Artifacts)
	}
	data, err := os.ReadFile(rec.Artifacts[0].Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "hosted-png" {
		t.Fatalf("artifact bytes: %q", data)
	}
}

func TestGenerateImageDownloadFailureFaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	d := testDeps(t, &capability.Set{
		Images: stubImages{res: capability.ImageResult{URL: srv.URL + "/img.png"}},
	})
	rec := runSync(t, d,
		step.Step{Kind: step.KindGenerateImage, Params: map[string]interface{}{"prompt": "a red fox"}},
	)
	if rec.Status != StatusError {
		t.Fatalf("status: %s, log: %v", rec.Status, rec.Log)
	}
	if len(rec.Artifacts) != 0 {
		t.Fatalf("failed download must not leave artifacts: %+v", rec.Artifacts)
	}
}

func TestMemoryListLimits(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 60; i++ {
		rec := &RunRecord{
			ID:        fmt.Sprintf("run-%02d", i),
			Status:    StatusDone,
			StartedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	recs, err := repo.List(ctx, 10)
	if err != nil || len(recs) != 10 {
		t.Fatalf("limit 10: %d err=%v", len(recs), err)
	}
	if recs[0].ID != "run-59" {
		t.Fatalf("newest first, got %s", recs[0].ID)
	}
	// zero and negative fall back to the same default as the SQL repository
	recs, err = repo.List(ctx, 0)
	if err != nil || len(recs) != 50 {
		t.Fatalf("limit 0: %d err=%v", len(recs), err)
	}
	recs, err = repo.List(ctx, -1)
	if err != nil || len(recs) != 50 {
		t.Fatalf("limit -1: %d err=%v", len(recs), err)
	}
}

func TestAddStepsPersistJobs(t *testing.T) {
	d := testDeps(t, &capability.Set{})
	rec := runSync(t, d,
		step.Step{Kind: step.KindAddMonitor, Params: map[string]interface{}{"url": "https://example.com", "to": "a@b.com"}},
		step.Step{Kind: step.KindAddBriefing, Params: map[string]interface{}{"topic": "rust", "to": "a@b.com", "frequency": "weekly"}},
		step.Step{Kind: step.KindAddJobAlert, Params: map[string]interface{}{
			"keywords": []interface{}{"golang"}, "feeds": []interface{}{"https://jobs.example.com/rss"}, "to": "a@b.com",
		}},
	)
	if rec.Status != StatusDone {
		t.Fatalf("status: %s, log: %v", rec.Status, rec.Log)
	}
	if got := d.Jobs.Monitors(); len(got) != 1 || got[0].URL != "https://example.com" {
		t.Fatalf("monitors: %+v", got)
	}
	if got := d.Jobs.Briefings(); len(got) != 1 || got[0].Frequency != "@weekly" {
		t.Fatalf("briefings: %+v", got)
	}
	if got := d.Jobs.JobAlerts(); len(got) != 1 || got[0].Keywords[0] != "golang" {
		t.Fatalf("alerts: %+v", got)
	}
}

func TestExecuteAsyncIsPollable(t *testing.T) {
	repo := NewMemoryRepository()
	d := testDeps(t, &capability.Set{Browser: &stubBrowser{shot: []byte("x")}})
	exec := New(repo, Handlers(d))
	id, err := exec.Execute(context.Background(), step.Plan{Steps: []step.Step{
		{Kind: step.KindCaptureScreenshot, Params: map[string]interface{}{"url": "https://example.com"}},
	}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, ok, err := repo.Get(context.Background(), id)
		if err != nil || !ok {
			t.Fatalf("get %s: ok=%v err=%v", id, ok, err)
		}
		if rec.Status != StatusRunning {
			if rec.Status != StatusDone {
				t.Fatalf("status: %s, log: %v", rec.Status, rec.Log)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s never finished", id)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
