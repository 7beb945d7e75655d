package mfa

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/authdata/internal/rate"
	"github.com/dropDatabas3/authdata/internal/security/secretbox"
	"github.com/dropDatabas3/authdata/internal/security/totp"
)

// SMSSender delivers code to mobile.
type SMSSender func(ctx context.Context, code, mobile string) error

// Config configures an Engine.
type Config struct {
	TOTP bool
	SMS  bool
	// Algorithm, Digits and Period shape TOTP codes; Digits and Period also
	// size SMS codes and their lifetime.
	Algorithm string
	Digits    int
	Period    int
	// SMSTTL overrides the SMS code lifetime (default Period seconds).
	SMSTTL  time.Duration
	SendSMS SMSSender
	// Window is the TOTP step tolerance (default 1).
	Window int
	// RecoveryCodes issued at TOTP enrollment (default 2).
	RecoveryCodes      int
	RecoveryCodeLength int
	// ReplayProtection rejects a TOTP step that was already accepted.
	ReplayProtection bool
	// Box seals secrets at rest when set.
	Box *secretbox.Box
	// Limiter bounds verification attempts per user when set.
	Limiter rate.Limiter
	Now     func() time.Time
}

// Validate checks the configuration, applying defaults first.
func (c *Config) Validate() error {
	if !c.TOTP && !c.SMS {
		return errors.New("mfa.options must include SMS or TOTP")
	}
	if c.Digits == 0 {
		c.Digits = 6
	}
	if c.Period == 0 {
		c.Period = 30
	}
	if c.Algorithm == "" {
		c.Algorithm = "SHA1"
	}
	if c.Digits < 4 || c.Digits > 10 {
		return errors.New("mfa.digits must be between 4 and 10")
	}
	if c.Period < 10 {
		return errors.New("mfa.period must be greater than 10")
	}
	if !totp.ValidAlgorithm(c.Algorithm) {
		return errors.New("mfa.algorithm must be one of SHA1, SHA256, SHA512")
	}
	if c.SMS && c.SendSMS == nil {
		return errors.New("mfa.sendSMS callback must be defined when using SMS OTPs")
	}
	if c.Window <= 0 {
		c.Window = 1
	}
	if c.RecoveryCodes <= 0 {
		c.RecoveryCodes = 2
	}
	if c.RecoveryCodeLength <= 0 {
		c.RecoveryCodeLength = 16
	}
	if c.SMSTTL <= 0 {
		c.SMSTTL = time.Duration(c.Period) * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

func (c *Config) params() totp.Params {
	return totp.Params{Algorithm: c.Algorithm, Digits: c.Digits, Period: c.Period}
}
