package jobs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/errander/internal/artifact"
	"github.com/mohammad-safakhou/errander/internal/capability"
	"github.com/mohammad-safakhou/errander/internal/feeds"
)

// Summary reports the outcome of one sweep.
type Summary struct {
	Processed int `json:"processed"`
	Changed   int `json:"changed"`
}

// Sweeper re-runs persisted jobs once per invocation. It does not schedule
// itself; a periodic caller (cron, CLI, HTTP) triggers each sweep. Failures
// are isolated per job: one job's fetch failure never aborts the sweep for
// the rest.
type Sweeper struct {
	Jobs      *Store
	Caps      *capability.Set
	Artifacts *artifact.Store
	// Locker guards against concurrent sweeps racing on the same job files.
	// Optional; without it the race is a documented limitation.
	Locker *redis.Client
	Logger *log.Logger

	// fetch retrieves raw content for fingerprinting; overridable in tests.
	fetch func(ctx context.Context, url string) ([]byte, error)
}

// NewSweeper wires a Sweeper.
func NewSweeper(jobs *Store, caps *capability.Set, artifacts *artifact.Store, locker *redis.Client) *Sweeper {
	return &Sweeper{
		Jobs:      jobs,
		Caps:      caps,
		Artifacts: artifacts,
		Locker:    locker,
		Logger:    log.New(log.Writer(), "[SWEEP] ", log.LstdFlags),
		fetch:     fetchRaw,
	}
}

func fetchRaw(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
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
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

// lock takes a short redis lock for the named sweep. Returns an unlock func
// and whether the lock was acquired (always true without a locker).
func (s *Sweeper) lock(ctx context.Context, name string) (func(), bool) {
	if s.Locker == nil {
		return func() {}, true
	}
	key := "sweep:lock:" + name
	ok, err := s.Locker.SetNX(ctx, key, "1", 2*time.Minute).Result()
	if err != nil {
		s.Logger.Printf("lock %s: %v (proceeding unlocked)", key, err)
		return func() {}, true
	}
	if !ok {
		return func() {}, false
	}
	return func() { s.Locker.Del(context.Background(), key) }, true
}

// Fingerprint is the content hash compared between monitor sweeps.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// SweepMonitors fetches every monitored URL, compares its content
// fingerprint with the stored one and notifies with a fresh screenshot when
// it changed. The first sweep after creation only establishes a baseline,
// so job creation never produces a spurious notification.
func (s *Sweeper) SweepMonitors(ctx context.Context) (Summary, error) {
	unlock, ok := s.lock(ctx, "monitors")
	if !ok {
		return Summary{}, fmt.Errorf("monitor sweep already running")
	}
	defer unlock()

	var sum Summary
	for i, m := range s.Jobs.Monitors() {
		sum.Processed++
		body, err := s.fetch(ctx, m.URL)
		if err != nil {
			s.Logger.Printf("monitor %s: fetch failed: %v", m.URL, err)
			continue
		}
		fp := Fingerprint(body)
		if m.LastFingerprint != "" && fp != m.LastFingerprint {
			sum.Changed++
			s.notifyMonitorChange(ctx, m, body)
		}
		if err := s.Jobs.SetMonitorFingerprint(i, fp); err != nil {
			s.Logger.Printf("monitor %s: persist fingerprint: %v", m.URL, err)
		}
	}
	return sum, nil
}

func (s *Sweeper) notifyMonitorChange(ctx context.Context, m Monitor, body []byte) {
	mail, err := s.Caps.RequireMail()
	if err != nil {
		s.Logger.Printf("monitor %s: %v", m.URL, err)
		return
	}
	text := fmt.Sprintf("The content at %s changed since the last check.", m.URL)
	if excerpt := readableExcerpt(m.URL, body); excerpt != "" {
		text += "\n\nCurrent content:\n" + excerpt
	}
	msg := capability.Message{
		To:      m.NotifyTo,
		Subject: fmt.Sprintf("Content changed: %s", m.URL),
		Body:    text,
	}
	if browser, err := s.Caps.RequireBrowser(); err == nil {
		if shot, err := browser.Screenshot(ctx, m.URL); err != nil {
			s.Logger.Printf("monitor %s: screenshot failed: %v", m.URL, err)
		} else {
			if s.Artifacts != nil {
				if _, err := s.Artifacts.Save("png", shot); err != nil {
					s.Logger.Printf("monitor %s: save screenshot: %v", m.URL, err)
				}
			}
			msg.Attachment = &capability.Attachment{Filename: "monitor.png", Data: shot}
		}
	}
	if err := mail.Send(ctx, msg); err != nil {
		s.Logger.Printf("monitor %s: notify failed: %v", m.URL, err)
	}
}

// readableExcerpt extracts the main readable text of a fetched page for the
// change notification body. Pages that do not parse as an article yield "".
func readableExcerpt(pageURL string, body []byte) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > 600 {
		text = text[:600] + "..."
	}
	return text
}

// SweepBriefings sends every briefing's digest. It fires on every sweep
// regardless of the stored frequency; invocation cadence is the operator's
// lever (documented limitation, preserved deliberately).
func (s *Sweeper) SweepBriefings(ctx context.Context) (Summary, error) {
	unlock, ok := s.lock(ctx, "briefings")
	if !ok {
		return Summary{}, fmt.Errorf("briefing sweep already running")
	}
	defer unlock()

	var sum Summary
	for _, b := range s.Jobs.Briefings() {
		sum.Processed++
		digest, err := s.Caps.RequireDigest()
		if err != nil {
			s.Logger.Printf("briefing %q: %v", b.Topic, err)
			continue
		}
		text, err := digest.Digest(ctx, b.Topic)
		if err != nil {
			s.Logger.Printf("briefing %q: %v", b.Topic, err)
			continue
		}
		if err := s.send(ctx, b.NotifyTo, fmt.Sprintf("Briefing: %s", b.Topic), text); err != nil {
			s.Logger.Printf("briefing %q: %v", b.Topic, err)
			continue
		}
		sum.Changed++
	}
	return sum, nil
}

// SweepCompetitorWatches aggregates each watch's feeds and always notifies,
// even with "no updates": watches are a heartbeat, not an alert.
func (s *Sweeper) SweepCompetitorWatches(ctx context.Context) (Summary, error) {
	unlock, ok := s.lock(ctx, "watches")
	if !ok {
		return Summary{}, fmt.Errorf("competitor sweep already running")
	}
	defer unlock()

	var sum Summary
	for _, w := range s.Jobs.CompetitorWatches() {
		sum.Processed++
		items := s.fetchFeeds(ctx, w.Feeds)
		text := feeds.Format("Competitor updates:", items)
		if err := s.send(ctx, w.NotifyTo, "Competitor watch", text); err != nil {
			s.Logger.Printf("competitor watch: %v", err)
			continue
		}
		sum.Changed++
	}
	return sum, nil
}

// SweepJobAlerts filters each alert's feed items by keyword and notifies
// only when at least one item matched.
func (s *Sweeper) SweepJobAlerts(ctx context.Context) (Summary, error) {
	unlock, ok := s.lock(ctx, "alerts")
	if !ok {
		return Summary{}, fmt.Errorf("job alert sweep already running")
	}
	defer unlock()

	var sum Summary
	for _, a := range s.Jobs.JobAlerts() {
		sum.Processed++
		items := s.fetchFeeds(ctx, a.Feeds)
		matched, err := MatchItems(items, a.Keywords)
		if err != nil {
			s.Logger.Printf("job alert %v: %v", a.Keywords, err)
			continue
		}
		if len(matched) == 0 {
			continue
		}
		text := feeds.Format(fmt.Sprintf("Job postings matching %v:", a.Keywords), matched)
		if err := s.send(ctx, a.NotifyTo, "Job alert", text); err != nil {
			s.Logger.Printf("job alert %v: %v", a.Keywords, err)
			continue
		}
		sum.Changed++
	}
	return sum, nil
}

func (s *Sweeper) fetchFeeds(ctx context.Context, urls []string) []capability.FeedItem {
	fetcher, err := s.Caps.RequireFeeds()
	if err != nil {
		s.Logger.Printf("%v", err)
		return nil
	}
	var items []capability.FeedItem
	for _, u := range urls {
		got, err := fetcher.Fetch(ctx, u)
		if err != nil {
			s.Logger.Printf("feed %s: %v", u, err)
			continue
		}
		items = append(items, got...)
	}
	return items
}

func (s *Sweeper) send(ctx context.Context, to, subject, body string) error {
	mail, err := s.Caps.RequireMail()
	if err != nil {
		return err
	}
	return mail.Send(ctx, capability.Message{To: to, Subject: subject, Body: body})
}
