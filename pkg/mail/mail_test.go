package mail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSMTPServer is a minimal SMTP server that accepts connections until
// stopped and records the DATA section of every message it receives.
// dataDelay holds back the reply to the end of DATA.
type testSMTPServer struct {
	ln        net.Listener
	dataDelay time.Duration
	wg        sync.WaitGroup
	mu        sync.Mutex
	messages  []string
	conns     int
}

func startTestSMTPServer(t *testing.T) *testSMTPServer {
	t.Helper()
	return startSlowSMTPServer(t, 0)
}

func startSlowSMTPServer(t *testing.T, dataDelay time.Duration) *testSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testSMTPServer{ln: ln, dataDelay: dataDelay}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns++
			s.mu.Unlock()
			s.wg.Add(1)
			go s.serve(conn)
		}
	}()
	t.Cleanup(s.stop)
	return s
}

func (s *testSMTPServer) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	r := bufio.NewReader(conn)
	fmt.Fprintf(conn, "220 localhost Test SMTP Service Ready\r\n")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
			fmt.Fprintf(conn, "250-localhost Hello\r\n250 OK\r\n")
		case strings.HasPrefix(line, "DATA"):
			fmt.Fprintf(conn, "354 End data with <CR><LF>.<CR><LF>\r\n")
			var data strings.Builder
			for {
				dline, derr := r.ReadString('\n')
				if derr != nil || strings.TrimSpace(dline) == "." {
					break
				}
				data.WriteString(dline)
			}
			s.mu.Lock()
			s.messages = append(s.messages, data.String())
			s.mu.Unlock()
			time.Sleep(s.dataDelay)
			fmt.Fprintf(conn, "250 OK: queued as 12345\r\n")
		case strings.HasPrefix(line, "QUIT"):
			fmt.Fprintf(conn, "221 Bye\r\n")
			return
		default:
			fmt.Fprintf(conn, "250 OK\r\n")
		}
	}
}

func (s *testSMTPServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *testSMTPServer) stop() {
	_ = s.ln.Close()
	s.wg.Wait()
}

func (s *testSMTPServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func TestNewSMTPClient_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SMTPConfig
		wantErr bool
	}{
		{name: "valid", cfg: SMTPConfig{Host: "smtp.example.com", Port: 587}},
		{name: "missing host", cfg: SMTPConfig{Port: 25}, wantErr: true},
		{name: "zero port", cfg: SMTPConfig{Host: "smtp.example.com"}, wantErr: true},
		{name: "port too high", cfg: SMTPConfig{Host: "smtp.example.com", Port: 70000}, wantErr: true},
		{name: "insecure skip verify", cfg: SMTPConfig{Host: "smtp.internal", Port: 25, InsecureSkipVerify: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewSMTPClient(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Implements(t, (*Client)(nil), c)
		})
	}
}

func TestNewSMTPClient_SecureOverridesPortGuess(t *testing.T) {
	c, err := NewSMTPClient(SMTPConfig{Host: "smtp.example.com", Port: 465, Secure: false})
	require.NoError(t, err)
	assert.False(t, c.Secure())

	c, err = NewSMTPClient(SMTPConfig{Host: "smtp.example.com", Port: 2525, Secure: true})
	require.NoError(t, err)
	assert.True(t, c.Secure())
}

func TestSMTPClient_SendHappyPath(t *testing.T) {
	srv := startTestSMTPServer(t)

	c, err := NewSMTPClient(SMTPConfig{Host: "127.0.0.1", Port: srv.port(), Timeout: 5 * time.Second})
	require.NoError(t, err)

	receipt, err := c.Send(context.Background(), Message{
		From:    "logger@example.com",
		To:      "ops@example.com, oncall@example.com",
		Subject: "Winston: error host",
		Text:    "boom",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(receipt.MessageID, "@127.0.0.1>"))
	assert.Contains(t, receipt.Response, "127.0.0.1")

	msgs := srv.received()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Subject: Winston: error host")
	assert.Contains(t, msgs[0], "oncall@example.com")
	assert.Contains(t, msgs[0], "Message-Id: "+receipt.MessageID)
	assert.Contains(t, msgs[0], "boom")
}

func TestSMTPClient_Verify(t *testing.T) {
	srv := startTestSMTPServer(t)

	c, err := NewSMTPClient(SMTPConfig{Host: "127.0.0.1", Port: srv.port()})
	require.NoError(t, err)

	require.NoError(t, c.Verify(context.Background()))
	assert.Empty(t, srv.received(), "verify must not deliver a message")
}

func TestSMTPClient_FailuresAreWrapped(t *testing.T) {
	// Grab a free port and release it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	c, err := NewSMTPClient(SMTPConfig{Host: "127.0.0.1", Port: port, Timeout: 2 * time.Second})
	require.NoError(t, err)

	err = c.Verify(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerify)

	_, err = c.Send(context.Background(), Message{From: "a@example.com", To: "b@example.com", Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSend)
}

func TestSMTPClient_TimeoutBoundsSend(t *testing.T) {
	// A listener that accepts but never greets stalls the SMTP handshake.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	c, err := NewSMTPClient(SMTPConfig{
		Host:    "127.0.0.1",
		Port:    ln.Addr().(*net.TCPAddr).Port,
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Send(context.Background(), Message{From: "a@example.com", To: "b@example.com", Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSend)
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded), "greeting bounded by the connection timeout: %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSMTPClient_TimeoutDoesNotCutSlowDelivery(t *testing.T) {
	srv := startSlowSMTPServer(t, 300*time.Millisecond)

	c, err := NewSMTPClient(SMTPConfig{Host: "127.0.0.1", Port: srv.port(), Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	receipt, err := c.Send(context.Background(), Message{From: "a@example.com", To: "b@example.com", Text: "slow"})
	require.NoError(t, err, "server accepted the message after the connection timeout elapsed")
	assert.NotEmpty(t, receipt.MessageID)
	assert.Len(t, srv.received(), 1)
}

func TestSMTPClient_ContextDeadlineStopsSession(t *testing.T) {
	srv := startSlowSMTPServer(t, 2*time.Second)

	c, err := NewSMTPClient(SMTPConfig{Host: "127.0.0.1", Port: srv.port(), Timeout: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Send(ctx, Message{From: "a@example.com", To: "b@example.com", Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSend)
	assert.Less(t, time.Since(start), 1500*time.Millisecond, "send returned once the connection deadline hit")
}

func TestSplitAddresses(t *testing.T) {
	assert.Equal(t, []string{"a@x.com"}, splitAddresses("a@x.com"))
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, splitAddresses(" a@x.com , b@x.com,"))
	assert.Empty(t, splitAddresses(""))
}
