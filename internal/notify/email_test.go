package notify_test

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/miyazaki-CS/bidding-system/internal/notify"
)

// serveSMTP speaks just enough SMTP for one delivery and sends the received
// message body on bodyCh when the session ends.
func serveSMTP(ln net.Listener, bodyCh chan<- string) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	var body strings.Builder
	defer func() { bodyCh <- body.String() }()

	fmt.Fprint(conn, "220 smtp.test ready\r\n")
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			fmt.Fprint(conn, "250-smtp.test\r\n250 OK\r\n")
		case strings.HasPrefix(cmd, "HELO"):
			fmt.Fprint(conn, "250 OK\r\n")
		case strings.HasPrefix(cmd, "DATA"):
			fmt.Fprint(conn, "354 go ahead\r\n")
			for {
				dl, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(dl, "\r\n") == "." {
					break
				}
				body.WriteString(dl)
			}
			fmt.Fprint(conn, "250 OK\r\n")
		case strings.HasPrefix(cmd, "QUIT"):
			fmt.Fprint(conn, "221 bye\r\n")
			return
		default:
			fmt.Fprint(conn, "250 OK\r\n")
		}
	}
}

func newEmailChannel(t *testing.T, ln net.Listener) *notify.EmailChannel {
	t.Helper()
	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	return notify.NewEmailChannel(host, port, "sender@example.jp", "", "alerts@example.jp")
}

func TestEmailChannel_SendDeliversMessage(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	bodyCh := make(chan string, 1)
	go serveSMTP(ln, bodyCh)

	ch := newEmailChannel(t, ln)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := notify.Message{Subject: "入札案件", Body: "案件の詳細です。"}
	if err := ch.Send(ctx, msg); err != nil {
		t.Fatalf("Send returned unexpected error: %v", err)
	}

	body := <-bodyCh
	if !strings.Contains(body, "To: alerts@example.jp") {
		t.Errorf("mail lacks To header:\n%s", body)
	}
	if !strings.Contains(body, "=?utf-8?q?") && !strings.Contains(body, "=?UTF-8?q?") {
		t.Errorf("subject is not RFC 2047 encoded:\n%s", body)
	}
	if !strings.Contains(body, "案件の詳細です。") {
		t.Errorf("mail lacks the message body:\n%s", body)
	}
}

// A server that accepts the connection but never sends the greeting must not
// hold Send past the caller's context.
func TestEmailChannel_SendHonorsContextDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close() // hold the conn open, say nothing
		}
	}()

	ch := newEmailChannel(t, ln)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- ch.Send(ctx, notify.Message{Subject: "s", Body: "b"})
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Send succeeded against a server that never sent a greeting")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send still blocked long after its context expired")
	}
}
