package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/mohammad-safakhou/errander/config"
	"github.com/mohammad-safakhou/errander/internal/capability"
)

// POP3Reader fetches the most recent message from a POP3 mailbox. POP3 is a
// small line protocol, so the client is a thin wrapper over net/textproto:
// STAT reports the message count and RETR <count> returns the latest
// message by sequence number.
type POP3Reader struct {
	cfg config.POP3Config
}

// NewPOP3Reader builds the reader from config.
func NewPOP3Reader(cfg config.POP3Config) *POP3Reader {
	return &POP3Reader{cfg: cfg}
}

// Latest returns the raw RFC 822 content of the newest message, or
// capability.ErrMailboxEmpty when the mailbox has no messages.
func (r *POP3Reader) Latest(ctx context.Context) ([]byte, error) {
	timeout := r.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	addr := r.cfg.Host + ":" + r.cfg.Port

	var netConn net.Conn
	var err error
	if r.cfg.UseTLS {
		dialer := &net.Dialer{Timeout: timeout}
		netConn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: r.cfg.Host})
	} else {
		netConn, err = net.DialTimeout("tcp", addr, timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("pop3 connect %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	} else {
		_ = netConn.SetDeadline(time.Now().Add(timeout))
	}

	conn := textproto.NewConn(netConn)
	defer conn.Close()

	if _, err := readResponse(conn); err != nil {
		return nil, fmt.Errorf("pop3 greeting: %w", err)
	}
	if err := command(conn, "USER "+r.cfg.Username); err != nil {
		return nil, fmt.Errorf("pop3 user: %w", err)
	}
	if err := command(conn, "PASS "+r.cfg.Password); err != nil {
		return nil, fmt.Errorf("pop3 pass: %w", err)
	}

	if err := conn.PrintfLine("STAT"); err != nil {
		return nil, err
	}
	stat, err := readResponse(conn)
	if err != nil {
		return nil, fmt.Errorf("pop3 stat: %w", err)
	}
	var count, size int
	if _, err := fmt.Sscanf(stat, "%d %d", &count, &size); err != nil {
		return nil, fmt.Errorf("pop3 stat parse %q: %w", stat, err)
	}
	if count == 0 {
		_ = command(conn, "QUIT")
		return nil, capability.ErrMailboxEmpty
	}

	if err := conn.PrintfLine("RETR %d", count); err != nil {
		return nil, err
	}
	if _, err := readResponse(conn); err != nil {
		return nil, fmt.Errorf("pop3 retr: %w", err)
	}
	raw, err := io.ReadAll(conn.DotReader())
	if err != nil {
		return nil, fmt.Errorf("pop3 read message: %w", err)
	}
	_ = command(conn, "QUIT")
	return raw, nil
}

func command(conn *textproto.Conn, line string) error {
	if err := conn.PrintfLine("%s", line); err != nil {
		return err
	}
	_, err := readResponse(conn)
	return err
}

// readResponse reads one status line and returns the payload after +OK.
func readResponse(conn *textproto.Conn) (string, error) {
	line, err := conn.ReadLine()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(line, "+OK") {
		return strings.TrimSpace(strings.TrimPrefix(line, "+OK")), nil
	}
	return "", fmt.Errorf("server error: %s", strings.TrimPrefix(line, "-ERR "))
}

var _ capability.MailboxReader = (*POP3Reader)(nil)
