package capability

import (
	"context"
	"fmt"
	"time"
)

// ErrUnavailable indicates a required external capability is not configured.
// Handlers surface it as a step fault naming the missing configuration.
var ErrUnavailable = fmt.Errorf("capability not configured")

// Link is one anchor discovered on a page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// Browser is the headless-browser driver surface the executor depends on.
type Browser interface {
	Screenshot(ctx context.Context, url string) ([]byte, error)
	PDF(ctx context.Context, url string) ([]byte, error)
	Links(ctx context.Context, url string) ([]Link, error)
	FetchHTML(ctx context.Context, url string) (string, error)
}

// Attachment is a file carried by an outgoing message.
type Attachment struct {
	Filename string
	Data     []byte
}

// Message is one outbound mail.
type Message struct {
	To         string
	Subject    string
	Body       string
	Attachment *Attachment
}

// MailSender delivers outbound messages.
type MailSender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrMailboxEmpty is returned by MailboxReader when there is nothing to forward.
var ErrMailboxEmpty = fmt.Errorf("mailbox is empty")

// MailboxReader fetches the most recent message from the configured inbox.
type MailboxReader interface {
	Latest(ctx context.Context) ([]byte, error)
}

// ImageResult carries a generated image in whichever form the provider
// returned it: inline bytes or a hosted URL.
type ImageResult struct {
	Data []byte
	URL  string
}

// ImageGenerator produces an image for a text prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (ImageResult, error)
}

// DigestSource produces a formatted topical news digest.
type DigestSource interface {
	Digest(ctx context.Context, topic string) (string, error)
}

// FeedItem is one entry from a syndication feed, already sanitised.
type FeedItem struct {
	Title     string
	Link      string
	Summary   string
	Published time.Time
}

// FeedFetcher retrieves and sanitises syndication feeds.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]FeedItem, error)
}

// Set bundles the external capabilities a process was configured with.
// Nil fields are legal; the Require accessors turn absence into a
// descriptive error rather than a silent no-op.
type Set struct {
	Browser Browser
	Mail    MailSender
	Mailbox MailboxReader
	Images  ImageGenerator
	Digest  DigestSource
	Feeds   FeedFetcher
}

func (s *Set) RequireBrowser() (Browser, error) {
	if s == nil || s.Browser == nil {
		return nil, fmt.Errorf("%w: browser driver", ErrUnavailable)
	}
	return s.Browser, nil
}

func (s *Set) RequireMail() (MailSender, error) {
	if s == nil || s.Mail == nil {
		return nil, fmt.Errorf("%w: mail sender (mail.smtp)", ErrUnavailable)
	}
	return s.Mail, nil
}

func (s *Set) RequireMailbox() (MailboxReader, error) {
	if s == nil || s.Mailbox == nil {
		return nil, fmt.Errorf("%w: mailbox reader (mail.pop3)", ErrUnavailable)
	}
	return s.Mailbox, nil
}

func (s *Set) RequireImages() (ImageGenerator, error) {
	if s == nil || s.Images == nil {
		return nil, fmt.Errorf("%w: image generation (providers.openai)", ErrUnavailable)
	}
	return s.Images, nil
}

func (s *Set) RequireDigest() (DigestSource, error) {
	if s == nil || s.Digest == nil {
		return nil, fmt.Errorf("%w: news digest (news.api_key)", ErrUnavailable)
	}
	return s.Digest, nil
}

func (s *Set) RequireFeeds() (FeedFetcher, error) {
	if s == nil || s.Feeds == nil {
		return nil, fmt.Errorf("%w: feed fetcher", ErrUnavailable)
	}
	return s.Feeds, nil
}
