package smtpprobe

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/scorimmo/email-verifier/internal/core"
	"go.uber.org/zap"
)

// Config holds the relay and envelope settings for the prober
type Config struct {
	Host           string
	Port           int
	AuthUser       string
	AuthPassword   string
	HeloDomain     string
	FromDomain     string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	DataProbe      bool
}

// Prober probes mailbox existence over a raw SMTP dialogue without ever
// sending a message. It deliberately talks to a fixed authenticated relay
// rather than the target domain's own MX hosts, so results reflect the
// relay's view of deliverability.
type Prober struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a new SMTP prober
func New(cfg Config, logger *zap.Logger) *Prober {
	return &Prober{cfg: cfg, logger: logger}
}

// Probe runs one synchronous probe for the address. It never returns an
// error: transport failures degrade to a connection_error result.
func (p *Prober) Probe(ctx context.Context, email string) *core.SmtpProbeResult {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))

	dialer := &net.Dialer{Timeout: p.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		p.logger.Warn("SMTP connection failed", zap.String("relay", addr), zap.Error(err))
		return connectionFailure("connection failed: " + err.Error())
	}

	sess := &session{
		conn:    conn,
		text:    textproto.NewConn(conn),
		timeout: p.cfg.CommandTimeout,
	}
	defer sess.close()

	// Greeting banner; its content is not further validated
	if _, _, err := sess.read(); err != nil {
		return connectionFailure("no greeting from relay: " + err.Error())
	}

	code, msg, err := sess.cmd("EHLO %s", p.cfg.HeloDomain)
	if err != nil || code != 250 {
		return connectionFailure(ehloFailure(code, msg, err))
	}

	if strings.Contains(strings.ToUpper(msg), "STARTTLS") {
		msg = p.upgradeTLS(ctx, sess, msg)
	}

	if p.cfg.AuthUser != "" && p.cfg.AuthPassword != "" {
		p.authenticate(sess)
	}

	code, msg, err = sess.cmd("MAIL FROM:<verification@%s>", p.cfg.FromDomain)
	if err != nil {
		return connectionFailure("MAIL FROM failed: " + err.Error())
	}
	if code == 550 || code == 553 {
		// The relay refused our own sender identity; this says nothing
		// about the target address
		return &core.SmtpProbeResult{
			Success:       false,
			Code:          code,
			Response:      msg,
			Status:        core.StatusSenderRejected,
			Confidence:    core.ConfidenceVeryLow,
			ProbableCause: "relay_refused_sender",
		}
	}

	code, msg, err = sess.cmd("RCPT TO:<%s>", email)
	if err != nil {
		return connectionFailure("RCPT TO failed: " + err.Error())
	}

	data := core.DataOutcome{}
	if p.cfg.DataProbe && (code == 250 || code == 251) {
		data = p.probeData(sess)
	}

	return core.Classify(code, msg, data)
}

// upgradeTLS attempts the STARTTLS upgrade. Refusal or a failed handshake
// is non-fatal; the probe continues on whatever transport is left.
func (p *Prober) upgradeTLS(ctx context.Context, sess *session, ehloResponse string) string {
	code, _, err := sess.cmd("STARTTLS")
	if err != nil || code != 220 {
		if code != 502 {
			p.logger.Debug("STARTTLS refused", zap.Int("code", code), zap.Error(err))
		}
		return ehloResponse
	}

	tlsConn := tls.Client(sess.conn, &tls.Config{
		ServerName: p.cfg.Host,
		MinVersion: tls.VersionTLS12,
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		p.logger.Warn("STARTTLS handshake failed, continuing without TLS", zap.Error(err))
		return ehloResponse
	}

	sess.conn = tlsConn
	sess.text = textproto.NewConn(tlsConn)

	// The session state resets after the upgrade
	code, msg, err := sess.cmd("EHLO %s", p.cfg.HeloDomain)
	if err != nil || code != 250 {
		p.logger.Warn("EHLO after STARTTLS failed", zap.Int("code", code), zap.Error(err))
		return ehloResponse
	}
	return msg
}

// authenticate performs AUTH LOGIN; refusal or lack of support is non-fatal
func (p *Prober) authenticate(sess *session) {
	code, _, err := sess.cmd("AUTH LOGIN")
	if err != nil || code != 334 {
		p.logger.Debug("AUTH LOGIN not accepted", zap.Int("code", code), zap.Error(err))
		return
	}
	code, _, err = sess.cmd("%s", base64.StdEncoding.EncodeToString([]byte(p.cfg.AuthUser)))
	if err != nil || code != 334 {
		p.logger.Debug("AUTH LOGIN username refused", zap.Int("code", code), zap.Error(err))
		return
	}
	code, _, err = sess.cmd("%s", base64.StdEncoding.EncodeToString([]byte(p.cfg.AuthPassword)))
	if err != nil || code != 235 {
		p.logger.Debug("AUTH LOGIN credentials refused", zap.Int("code", code), zap.Error(err))
	}
}

// probeData issues a non-committing DATA command to catch servers that
// accept any recipient at RCPT time but reject at the content stage. On
// acceptance the transaction is aborted immediately; no message content is
// ever transmitted.
func (p *Prober) probeData(sess *session) core.DataOutcome {
	code, msg, err := sess.cmd("DATA")
	if err != nil {
		return core.DataOutcome{}
	}
	outcome := core.DataOutcome{
		Performed: true,
		Accepted:  code == 354,
		Response:  msg,
	}
	if outcome.Accepted {
		// In data mode the server replies only after a full message, so
		// abort without waiting: the connection is closed before any
		// terminating dot is sent.
		sess.send("RSET")
	}
	return outcome
}

func connectionFailure(response string) *core.SmtpProbeResult {
	return &core.SmtpProbeResult{
		Success:       false,
		Response:      response,
		Status:        core.StatusConnectionError,
		Confidence:    core.ConfidenceVeryLow,
		ProbableCause: "connection_failed",
	}
}

func ehloFailure(code int, msg string, err error) string {
	if err != nil {
		return "EHLO failed: " + err.Error()
	}
	return "EHLO rejected with code " + strconv.Itoa(code) + ": " + msg
}

// session wraps one SMTP connection with per-command deadlines
type session struct {
	conn    net.Conn
	text    *textproto.Conn
	timeout time.Duration
}

// cmd sends one command and reads the (possibly multiline) reply
func (s *session) cmd(format string, args ...any) (int, string, error) {
	_ = s.conn.SetDeadline(time.Now().Add(s.timeout))
	if err := s.text.PrintfLine(format, args...); err != nil {
		return 0, "", err
	}
	return s.read()
}

// send writes a command without waiting for a reply
func (s *session) send(line string) {
	_ = s.conn.SetDeadline(time.Now().Add(s.timeout))
	_ = s.text.PrintfLine("%s", line)
}

func (s *session) read() (int, string, error) {
	_ = s.conn.SetDeadline(time.Now().Add(s.timeout))
	return s.text.ReadResponse(-1)
}

// close quits politely when possible and always releases the socket
func (s *session) close() {
	s.send("QUIT")
	_ = s.conn.Close()
}
