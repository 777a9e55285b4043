package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mohammad-safakhou/errander/internal/artifact"
	"github.com/mohammad-safakhou/errander/internal/capability"
	"github.com/mohammad-safakhou/errander/internal/jobs"
	"github.com/mohammad-safakhou/errander/internal/step"
)

// Deps carries everything the step handlers touch.
type Deps struct {
	Caps      *capability.Set
	Jobs      *jobs.Store
	Artifacts *artifact.Store
}

// Handlers builds the kind-to-handler table. Handlers are idempotent-safe:
// a caller may resubmit a failed plan and re-run any of them.
func Handlers(d Deps) map[step.Kind]Handler {
	return map[step.Kind]Handler{
		step.KindCaptureScreenshot:    d.captureScreenshot,
		step.KindCapturePDF:           d.capturePDF,
		step.KindExtractLinks:         d.extractLinks,
		step.KindGenerateImage:        d.generateImage,
		step.KindNotifyWithArtifact:   d.notifyWithArtifact,
		step.KindNotifyWithText:       d.notifyWithText,
		step.KindSendNewsDigest:       d.sendNewsDigest,
		step.KindForwardLatestMessage: d.forwardLatestMessage,
		step.KindAddMonitor:           d.addMonitor,
		step.KindAddBriefing:          d.addBriefing,
		step.KindAddCompetitorWatch:   d.addCompetitorWatch,
		step.KindAddJobAlert:          d.addJobAlert,
	}
}

func (d Deps) captureScreenshot(ctx context.Context, st step.Step, rc *RunContext) error {
	browser, err := d.Caps.RequireBrowser()
	if err != nil {
		return err
	}
	url := st.String("url")
	data, err := browser.Screenshot(ctx, url)
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	art, err := d.Artifacts.Save("png", data)
	if err != nil {
		return err
	}
	art.SourceURL = url
	rc.AddArtifact(art)
	rc.Logf("captured screenshot of %s (%d bytes)", url, len(data))
	return nil
}

func (d Deps) capturePDF(ctx context.Context, st step.Step, rc *RunContext) error {
	browser, err := d.Caps.RequireBrowser()
	if err != nil {
		return err
	}
	url := st.String("url")
	data, err := browser.PDF(ctx, url)
	if err != nil {
		return fmt.Errorf("capture pdf: %w", err)
	}
	art, err := d.Artifacts.Save("pdf", data)
	if err != nil {
		return err
	}
	art.SourceURL = url
	rc.AddArtifact(art)
	rc.Logf("captured pdf of %s (%d bytes)", url, len(data))
	return nil
}

func (d Deps) extractLinks(ctx context.Context, st step.Step, rc *RunContext) error {
	browser, err := d.Caps.RequireBrowser()
	if err != nil {
		return err
	}
	url := st.String("url")
	anchors, err := browser.Links(ctx, url)
	if err != nil {
		return fmt.Errorf("extract links: %w", err)
	}
	selected := capability.SelectLinks(url, anchors, st.Int("count", 10))
	rc.LastText = capability.FormatLinks(url, selected)
	rc.Logf("extracted %d links from %s", len(selected), url)
	return nil
}

func (d Deps) generateImage(ctx context.Context, st step.Step, rc *RunContext) error {
	images, err := d.Caps.RequireImages()
	if err != nil {
		return err
	}
	prompt := st.String("prompt")
	result, err := images.GenerateImage(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generate image: %w", err)
	}
	data := result.Data
	if data == nil {
		data, err = download(ctx, result.URL)
		if err != nil {
			return fmt.Errorf("download generated image: %w", err)
		}
	}
	art, err := d.Artifacts.Save("png", data)
	if err != nil {
		return err
	}
	rc.AddArtifact(art)
	rc.Logf("generated image for prompt %q", prompt)
	return nil
}

func download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 25<<20))
}

func (d Deps) notifyWithArtifact(ctx context.Context, st step.Step, rc *RunContext) error {
	mail, err := d.Caps.RequireMail()
	if err != nil {
		return err
	}
	if rc.LastArtifact == nil {
		return fmt.Errorf("notify_with_artifact: no artifact in context")
	}
	data, err := os.ReadFile(rc.LastArtifact.Path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	subject := st.String("subject")
	if subject == "" {
		subject = "Your requested capture"
	}
	body := "Attached."
	if rc.LastArtifact.SourceURL != "" {
		body = fmt.Sprintf("Attached: capture of %s", rc.LastArtifact.SourceURL)
	}
	msg := capability.Message{
		To:      st.String("to"),
		Subject: subject,
		Body:    body,
		Attachment: &capability.Attachment{
			Filename: filepath.Base(rc.LastArtifact.Path),
			Data:     data,
		},
	}
	if err := mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	rc.Logf("sent artifact to %s", msg.To)
	return nil
}

func (d Deps) notifyWithText(ctx context.Context, st step.Step, rc *RunContext) error {
	mail, err := d.Caps.RequireMail()
	if err != nil {
		return err
	}
	if rc.LastText == "" {
		return fmt.Errorf("notify_with_text: no text in context")
	}
	subject := st.String("subject")
	if subject == "" {
		subject = "Your requested extraction"
	}
	msg := capability.Message{To: st.String("to"), Subject: subject, Body: rc.LastText}
	if err := mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	rc.Logf("sent text to %s", msg.To)
	return nil
}

func (d Deps) sendNewsDigest(ctx context.Context, st step.Step, rc *RunContext) error {
	digest, err := d.Caps.RequireDigest()
	if err != nil {
		return err
	}
	mail, err := d.Caps.RequireMail()
	if err != nil {
		return err
	}
	topic := st.String("topic")
	text, err := digest.Digest(ctx, topic)
	if err != nil {
		return fmt.Errorf("fetch digest: %w", err)
	}
	rc.LastText = text
	msg := capability.Message{
		To:      st.String("to"),
		Subject: fmt.Sprintf("News digest: %s", topic),
		Body:    text,
	}
	if err := mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	rc.Logf("sent %q digest to %s", topic, msg.To)
	return nil
}

func (d Deps) forwardLatestMessage(ctx context.Context, st step.Step, rc *RunContext) error {
	mailbox, err := d.Caps.RequireMailbox()
	if err != nil {
		return err
	}
	mail, err := d.Caps.RequireMail()
	if err != nil {
		return err
	}
	raw, err := mailbox.Latest(ctx)
	if err != nil {
		return fmt.Errorf("read mailbox: %w", err)
	}
	msg := capability.Message{
		To:      st.String("to"),
		Subject: "Fwd: latest message",
		Body:    string(raw),
	}
	if err := mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("forward: %w", err)
	}
	rc.Logf("forwarded latest message to %s", msg.To)
	return nil
}

func (d Deps) addMonitor(ctx context.Context, st step.Step, rc *RunContext) error {
	m := jobs.Monitor{URL: st.String("url"), NotifyTo: st.String("to")}
	if err := d.Jobs.AddMonitor(m); err != nil {
		return fmt.Errorf("persist monitor: %w", err)
	}
	rc.Logf("monitor saved for %s, notifying %s", m.URL, m.NotifyTo)
	return nil
}

func (d Deps) addBriefing(ctx context.Context, st step.Step, rc *RunContext) error {
	b := jobs.Briefing{
		Topic:     st.String("topic"),
		NotifyTo:  st.String("to"),
		Frequency: jobs.NormalizeFrequency(st.String("frequency")),
	}
	if err := d.Jobs.AddBriefing(b); err != nil {
		return fmt.Errorf("persist briefing: %w", err)
	}
	rc.Logf("briefing saved for %q (%s), notifying %s", b.Topic, b.Frequency, b.NotifyTo)
	return nil
}

func (d Deps) addCompetitorWatch(ctx context.Context, st step.Step, rc *RunContext) error {
	w := jobs.CompetitorWatch{Feeds: st.StringSlice("feeds"), NotifyTo: st.String("to")}
	if err := d.Jobs.AddCompetitorWatch(w); err != nil {
		return fmt.Errorf("persist competitor watch: %w", err)
	}
	rc.Logf("competitor watch saved (%d feeds), notifying %s", len(w.Feeds), w.NotifyTo)
	return nil
}

func (d Deps) addJobAlert(ctx context.Context, st step.Step, rc *RunContext) error {
	a := jobs.JobAlert{
		Keywords: st.StringSlice("keywords"),
		Feeds:    st.StringSlice("feeds"),
		NotifyTo: st.String("to"),
	}
	if err := d.Jobs.AddJobAlert(a); err != nil {
		return fmt.Errorf("persist job alert: %w", err)
	}
	rc.Logf("job alert saved for %v (%d feeds), notifying %s", a.Keywords, len(a.Feeds), a.NotifyTo)
	return nil
}
