package smtpprobe

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scorimmo/email-verifier/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRelay is a scripted SMTP server: each command verb maps to a canned
// reply. It records the verbs it saw so tests can assert on the dialogue.
type fakeRelay struct {
	addr      string
	greeting  string
	responses map[string]string

	mu       sync.Mutex
	commands []string
}

func startFakeRelay(t *testing.T, responses map[string]string) *fakeRelay {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	relay := &fakeRelay{
		addr:      ln.Addr().String(),
		greeting:  "220 relay.test ESMTP",
		responses: responses,
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		relay.serve(conn)
	}()

	return relay
}

func (f *fakeRelay) serve(conn net.Conn) {
	fmt.Fprintf(conn, "%s\r\n", f.greeting)

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.Fields(strings.TrimSpace(line))[0])
		verb = strings.TrimSuffix(verb, ":")

		f.mu.Lock()
		f.commands = append(f.commands, verb)
		f.mu.Unlock()

		if verb == "QUIT" {
			fmt.Fprintf(conn, "221 Bye\r\n")
			return
		}
		if resp, ok := f.responses[verb]; ok {
			fmt.Fprintf(conn, "%s\r\n", resp)
		} else {
			fmt.Fprintf(conn, "502 command not implemented\r\n")
		}
	}
}

func (f *fakeRelay) sawCommand(verb string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, seen := range f.commands {
		if seen == verb {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T, addr string, dataProbe bool) Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return Config{
		Host:           host,
		Port:           port,
		HeloDomain:     "probe.test",
		FromDomain:     "probe.test",
		ConnectTimeout: 2 * time.Second,
		CommandTimeout: 2 * time.Second,
		DataProbe:      dataProbe,
	}
}

func TestProbeAcceptedRecipientWithDataProbe(t *testing.T) {
	relay := startFakeRelay(t, map[string]string{
		"EHLO": "250-relay.test\r\n250 SIZE 35882577",
		"MAIL": "250 Sender OK",
		"RCPT": "250 2.1.5 Recipient OK",
		"DATA": "354 Go ahead",
	})

	prober := New(testConfig(t, relay.addr, true), zap.NewNop())
	result := prober.Probe(context.Background(), "user@example.com")

	assert.True(t, result.Success)
	assert.Equal(t, core.StatusValid, result.Status)
	assert.Equal(t, core.ConfidenceHigh, result.Confidence)
	assert.True(t, result.DataTestPerformed)
	assert.True(t, result.DataTestAccepted)
}

func TestProbeMailboxNotFound(t *testing.T) {
	relay := startFakeRelay(t, map[string]string{
		"EHLO": "250-relay.test\r\n250 SIZE 35882577",
		"MAIL": "250 Sender OK",
		"RCPT": "550 5.1.1 User unknown",
	})

	prober := New(testConfig(t, relay.addr, true), zap.NewNop())
	result := prober.Probe(context.Background(), "ghost@example.com")

	assert.False(t, result.Success)
	assert.Equal(t, core.StatusInvalid, result.Status)
	assert.Equal(t, "mailbox_not_found", result.ProbableCause)
	assert.Equal(t, "5.1.1", result.ExtendedCode)

	// A refused recipient must not trigger the DATA stage
	assert.False(t, relay.sawCommand("DATA"))
}

func TestProbeSenderRejectedShortCircuits(t *testing.T) {
	relay := startFakeRelay(t, map[string]string{
		"EHLO": "250-relay.test\r\n250 SIZE 35882577",
		"MAIL": "550 sender address blocked",
	})

	prober := New(testConfig(t, relay.addr, true), zap.NewNop())
	result := prober.Probe(context.Background(), "user@example.com")

	assert.False(t, result.Success)
	assert.Equal(t, core.StatusSenderRejected, result.Status)
	assert.Equal(t, "relay_refused_sender", result.ProbableCause)

	// The probe learned nothing about the recipient
	assert.False(t, relay.sawCommand("RCPT"))
}

func TestProbeTemporaryError(t *testing.T) {
	relay := startFakeRelay(t, map[string]string{
		"EHLO": "250-relay.test\r\n250 SIZE 35882577",
		"MAIL": "250 Sender OK",
		"RCPT": "451 greylisted, try again later",
	})

	prober := New(testConfig(t, relay.addr, true), zap.NewNop())
	result := prober.Probe(context.Background(), "user@example.com")

	assert.Equal(t, core.StatusTemporaryError, result.Status)
	assert.True(t, result.NeedsRetry)
	assert.Equal(t, "mailbox_being_created", result.ProbableCause)
}

func TestProbeDataProbeDisabled(t *testing.T) {
	relay := startFakeRelay(t, map[string]string{
		"EHLO": "250-relay.test\r\n250 SIZE 35882577",
		"MAIL": "250 Sender OK",
		"RCPT": "250 Recipient OK",
	})

	prober := New(testConfig(t, relay.addr, false), zap.NewNop())
	result := prober.Probe(context.Background(), "user@example.com")

	assert.True(t, result.Success)
	assert.Equal(t, core.ConfidenceMedium, result.Confidence)
	assert.False(t, result.DataTestPerformed)
	assert.False(t, relay.sawCommand("DATA"))
}

func TestProbeStartTLSRefusalIsNonFatal(t *testing.T) {
	relay := startFakeRelay(t, map[string]string{
		"EHLO":     "250-relay.test\r\n250-STARTTLS\r\n250 SIZE 35882577",
		"STARTTLS": "454 TLS not available right now",
		"MAIL":     "250 Sender OK",
		"RCPT":     "250 Recipient OK",
	})

	prober := New(testConfig(t, relay.addr, false), zap.NewNop())
	result := prober.Probe(context.Background(), "user@example.com")

	assert.True(t, result.Success)
	assert.Equal(t, core.StatusValid, result.Status)
	assert.True(t, relay.sawCommand("STARTTLS"))
}

func TestProbeConnectionRefused(t *testing.T) {
	// Grab a free port and close it again so the dial is refused
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	prober := New(testConfig(t, addr, true), zap.NewNop())
	result := prober.Probe(context.Background(), "user@example.com")

	assert.False(t, result.Success)
	assert.Equal(t, core.StatusConnectionError, result.Status)
	assert.Equal(t, "connection_failed", result.ProbableCause)
}

func TestProbeRejectedEhlo(t *testing.T) {
	relay := startFakeRelay(t, map[string]string{
		"EHLO": "554 not welcome here",
	})

	prober := New(testConfig(t, relay.addr, true), zap.NewNop())
	result := prober.Probe(context.Background(), "user@example.com")

	assert.Equal(t, core.StatusConnectionError, result.Status)
	assert.Contains(t, result.Response, "EHLO rejected")
}
