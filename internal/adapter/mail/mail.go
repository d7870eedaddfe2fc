// Package mail delivers email verification codes.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/knadh/smtppool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/config"
)

// Sender dispatches verification codes.
type Sender interface {
	SendVerificationCode(ctx context.Context, email, code string) error
}

// New returns an SMTP sender when a host is configured and a log sender
// otherwise.
func New(cfg config.SMTPConfig, logger *zap.Logger) (Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return NewLogSender(logger), nil
	}
	return NewSMTPSender(cfg, logger)
}

// SMTPSender sends mail through a pooled SMTP connection set.
type SMTPSender struct {
	pool    *smtppool.Pool
	from    string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewSMTPSender opens the connection pool.
func NewSMTPSender(cfg config.SMTPConfig, logger *zap.Logger) (*SMTPSender, error) {
	if logger == nil {
		logger = zap.L()
	}
	opt := smtppool.Opt{
		Host:            cfg.Host,
		Port:            cfg.Port,
		MaxConns:        cfg.MaxConns,
		IdleTimeout:     cfg.IdleTimeout,
		PoolWaitTimeout: cfg.PoolWait,
	}
	if cfg.Username != "" {
		opt.Auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	if cfg.TLS {
		opt.TLSConfig = &tls.Config{ServerName: cfg.Host}
	}

	pool, err := smtppool.New(opt)
	if err != nil {
		return nil, fmt.Errorf("smtp pool: %w", err)
	}

	limit := rate.Inf
	if cfg.SendsPerSecond > 0 {
		limit = rate.Limit(cfg.SendsPerSecond)
	}
	return &SMTPSender{
		pool:    pool,
		from:    cfg.From,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// SendVerificationCode waits for an outbound slot and sends the code.
func (s *SMTPSender) SendVerificationCode(ctx context.Context, email, code string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for mail slot: %w", err)
	}
	subject, text := verificationMessage(code)
	if err := s.pool.Send(smtppool.Email{
		From:    s.from,
		To:      []string{email},
		Subject: subject,
		Text:    []byte(text),
	}); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	s.logger.Debug("verification mail sent", zap.String("email", email))
	return nil
}

// Close shuts the pool down.
func (s *SMTPSender) Close() {
	s.pool.Close()
}

// LogSender writes codes to the log. It is meant for development.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a LogSender. A nil logger falls back to zap.L().
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.L()
	}
	return &LogSender{logger: logger.Named("mail")}
}

func (s *LogSender) SendVerificationCode(ctx context.Context, email, code string) error {
	s.logger.Info("verification code", zap.String("email", email), zap.String("code", code))
	return nil
}

func verificationMessage(code string) (string, string) {
	return "Verify your email address",
		fmt.Sprintf("Your verification code is %s\n\nThe code expires in 10 minutes.\n", code)
}
