package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/errander/config"
	"github.com/mohammad-safakhou/errander/internal/capability"
)

func TestBuildMessagePlain(t *testing.T) {
	raw, err := buildMessage("svc@errander.example", capability.Message{
		To:      "a@b.com",
		Subject: "Your requested extraction",
		Body:    "1. https://example.com/a\n",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := msg.Header.Get("To"); got != "a@b.com" {
		t.Fatalf("To: %q", got)
	}
	if !strings.HasPrefix(msg.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("Content-Type: %q", msg.Header.Get("Content-Type"))
	}
	body, _ := io.ReadAll(msg.Body)
	if !strings.Contains(string(body), "https://example.com/a") {
		t.Fatalf("body: %q", body)
	}
}

func TestBuildMessageWithAttachment(t *testing.T) {
	payload := []byte("pdf-bytes-here")
	raw, err := buildMessage("svc@errander.example", capability.Message{
		To:      "a@b.com",
		Subject: "Your requested capture",
		Body:    "Attached.",
		Attachment: &capability.Attachment{
			Filename: "capture.pdf",
			Data:     payload,
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/mixed" {
		t.Fatalf("media type %q: %v", mediaType, err)
	}

	mr := multipart.NewReader(msg.Body, params["boundary"])

	text, err := mr.NextPart()
	if err != nil {
		t.Fatalf("text part: %v", err)
	}
	textBody, _ := io.ReadAll(text)
	if !strings.Contains(string(textBody), "Attached.") {
		t.Fatalf("text part body: %q", textBody)
	}

	att, err := mr.NextPart()
	if err != nil {
		t.Fatalf("attachment part: %v", err)
	}
	if got := att.FileName(); got != "capture.pdf" {
		t.Fatalf("filename: %q", got)
	}
	if got := att.Header.Get("Content-Transfer-Encoding"); got != "base64" {
		t.Fatalf("encoding: %q", got)
	}
	encoded, _ := io.ReadAll(att)
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatalf("attachment bytes: %q", decoded)
	}
}

func TestSendRejectsEmptyRecipient(t *testing.T) {
	s := NewSMTPSender(config.SMTPConfig{Host: "smtp.example.com", Port: "587", From: "svc@errander.example"})
	err := s.Send(context.Background(), capability.Message{To: "  ", Subject: "x", Body: "y"})
	if err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}

func TestSendFailsFastOnStalledRelay(t *testing.T) {
	// a relay that accepts the connection and never sends a greeting
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(10 * time.Second)
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	s := NewSMTPSender(config.SMTPConfig{Host: host, Port: port, From: "svc@errander.example"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = s.Send(ctx, capability.Message{To: "a@b.com", Subject: "x", Body: "y"})
	if err == nil {
		t.Fatalf("stalled relay must fail the send")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("send blocked %v past a 200ms context deadline", elapsed)
	}
}
