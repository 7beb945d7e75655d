// Package mfa is the second-factor state machine: TOTP and SMS enrollment,
// login challenges, rotation, recovery codes and unlinking.
//
// A user's factor is disabled until enrollment completes. SMS enrollment is
// two-phase: the mobile is held in Pending until the code sent to it comes
// back. Only an enabled factor is challenged at login.
package mfa

import (
	"context"
	"crypto/subtle"
	"regexp"
	"strings"
	"time"

	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/metrics"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
	"github.com/dropDatabas3/authdata/internal/providers"
	"github.com/dropDatabas3/authdata/internal/security/secretbox"
	tokens "github.com/dropDatabas3/authdata/internal/security/token"
	"github.com/dropDatabas3/authdata/internal/security/totp"
	"github.com/dropDatabas3/authdata/internal/util"
)

// RequestToken is the login value asking for a fresh SMS code.
const RequestToken = "request"

var mobilePattern = regexp.MustCompile(`^[+]*[(]{0,1}[0-9]{1,3}[)]{0,1}[-\s\./0-9]*$`)

var (
	errNotPending       = autherr.New(autherr.KindMfaInvalidToken, "This number is not pending")
	errAlreadySetUp     = autherr.New(autherr.KindMfaInvalidData, "MFA is already set up on this account")
	errInvalidMobile    = autherr.New(autherr.KindMfaInvalidData, "Invalid mobile number.")
	errTooManyAttempts  = autherr.New(autherr.KindMfaInvalidToken, "Too many MFA attempts. Try again later.")
	errSecretUnreadable = autherr.New(autherr.KindMisconfigured, "MFA secret could not be read")
)

// Engine runs the state machine over stored Records. It holds no per-user
// state; callers persist Result.Save under compare-and-swap.
type Engine struct {
	cfg Config
}

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, autherr.Wrap(err, autherr.KindMisconfigured, err.Error())
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Setup enrolls a user who has no mfa record: {mobile} starts SMS
// enrollment, {secret, token} completes TOTP enrollment.
func (e *Engine) Setup(ctx context.Context, data providers.AuthData, req providers.Request) (providers.Result, error) {
	log := logger.From(ctx).With(logger.Component("mfa"), logger.Op("mfa.setup"), logger.UserID(req.UserID))

	if err := e.allow(ctx, req.UserID); err != nil {
		return providers.Result{}, err
	}
	if mobile := data.String("mobile"); mobile != "" && e.cfg.SMS {
		rec := Record{Status: StatusDisabled}
		if err := e.addPending(ctx, &rec, mobile, req); err != nil {
			return providers.Result{}, err
		}
		log.Info("mfa sms enrollment started", logger.MFAStatus(string(rec.State())))
		return providers.Result{Save: rec.AuthData()}, nil
	}
	if e.cfg.TOTP {
		return e.enrollTOTP(ctx, data, req)
	}
	return providers.Result{}, autherr.ErrMfaInvalidData
}

// Update changes an existing record: SMS confirmation or resend, TOTP
// rotation. Replacing an enabled factor needs proof under it in "old".
func (e *Engine) Update(ctx context.Context, data providers.AuthData, req providers.Request, existing providers.AuthData) (providers.Result, error) {
	if req.Master {
		return providers.Result{}, nil
	}
	rec, err := ParseRecord(existing)
	if err != nil {
		return providers.Result{}, autherr.ErrMfaInvalidData
	}
	if err := e.allow(ctx, req.UserID); err != nil {
		return providers.Result{}, err
	}

	if mobile := data.String("mobile"); mobile != "" && e.cfg.SMS {
		token := data.String("token")
		if token == "" {
			if rec.Enabled() {
				if _, ok := data["old"]; !ok {
					return providers.Result{}, errAlreadySetUp
				}
				if _, err := e.verify(ctx, &rec, data["old"], req); err != nil {
					return providers.Result{}, err
				}
			}
			if err := e.addPending(ctx, &rec, mobile, req); err != nil {
				return providers.Result{}, err
			}
			return providers.Result{Save: rec.AuthData()}, nil
		}
		return e.confirmPending(ctx, rec, mobile, token, req)
	}

	if e.cfg.TOTP {
		if rec.Enabled() {
			if _, err := e.verify(ctx, &rec, data["old"], req); err != nil {
				logger.From(ctx).Info("mfa rotation rejected",
					logger.Component("mfa"), logger.UserID(req.UserID), logger.Err(err))
				return providers.Result{}, err
			}
		}
		return e.enrollTOTP(ctx, data, req)
	}
	return providers.Result{}, autherr.ErrMfaInvalidData
}

// Login challenges an enabled factor. Partial enrollments pass untouched.
func (e *Engine) Login(ctx context.Context, data providers.AuthData, req providers.Request, existing providers.AuthData) (providers.Result, error) {
	log := logger.From(ctx).With(logger.Component("mfa"), logger.Op("mfa.login"), logger.UserID(req.UserID))

	rec, err := ParseRecord(existing)
	if err != nil {
		return providers.Result{}, autherr.ErrMfaInvalidData
	}
	purged := rec.purgeExpired(e.cfg.Now())
	if !rec.Enabled() {
		if purged {
			return providers.Result{Save: rec.AuthData()}, nil
		}
		return providers.Result{DoNotSave: true}, nil
	}
	if err := e.allow(ctx, req.UserID); err != nil {
		return providers.Result{}, err
	}

	value := data["token"]
	if s, ok := value.(string); ok && s == RequestToken && e.cfg.SMS && rec.Mobile != "" {
		code, err := e.send(ctx, rec.Mobile, req)
		if err != nil {
			return providers.Result{}, err
		}
		rec.Token = code.Token
		rec.Expiry = &code.Expiry
		log.Info("mfa login code sent")
		return providers.Result{Save: rec.AuthData(), Reject: autherr.ErrMfaTokenRequested}, nil
	}

	changed, err := e.verify(ctx, &rec, value, req)
	if err != nil {
		metrics.MFAEvent("login_rejected")
		return providers.Result{}, err
	}
	metrics.MFAEvent("login_verified")
	if !changed && !purged {
		return providers.Result{DoNotSave: true}, nil
	}
	return providers.Result{Save: rec.AuthData()}, nil
}

// Unlink approves removing the factor. An enabled factor must be proven
// with a token or recovery code unless the request is master.
func (e *Engine) Unlink(ctx context.Context, proof providers.AuthData, req providers.Request, existing providers.AuthData) error {
	if req.Master {
		return nil
	}
	rec, err := ParseRecord(existing)
	if err != nil || !rec.Enabled() {
		return nil
	}
	if err := e.allow(ctx, req.UserID); err != nil {
		return err
	}
	if _, err := e.verify(ctx, &rec, proof["token"], req); err != nil {
		return err
	}
	metrics.MFAEvent("unlinked")
	logger.From(ctx).Info("mfa removed", logger.Component("mfa"), logger.UserID(req.UserID))
	return nil
}

// Policy makes an enabled factor required alongside the primary credential.
func (e *Engine) Policy(stored providers.AuthData) providers.Policy {
	rec, err := ParseRecord(stored)
	if err == nil && rec.Enabled() {
		return providers.PolicyAdditional
	}
	return providers.PolicyDefault
}

// Project hides secrets from clients: only the status is visible.
func (e *Engine) Project(stored providers.AuthData, req providers.Request) providers.AuthData {
	if req.Master {
		return stored
	}
	rec, _ := ParseRecord(stored)
	if rec.Enabled() {
		return providers.AuthData{"status": string(StatusEnabled)}
	}
	return providers.AuthData{"status": string(StatusDisabled)}
}

func (e *Engine) enrollTOTP(ctx context.Context, data providers.AuthData, req providers.Request) (providers.Result, error) {
	secret := data.String("secret")
	token, ok := data["token"].(string)
	if !ok || token == "" || len(secret) < 20 {
		return providers.Result{}, autherr.ErrMfaInvalidData
	}
	raw, err := totp.DecodeSecret(secret)
	if err != nil {
		return providers.Result{}, autherr.ErrMfaInvalidData
	}
	valid, step := e.cfg.params().Verify(raw, token, e.cfg.Now(), e.cfg.Window, nil)
	if !valid {
		metrics.MFAEvent("enroll_rejected")
		return providers.Result{}, autherr.ErrMfaInvalidToken
	}

	codes, err := tokens.RecoveryCodes(e.cfg.RecoveryCodes, e.cfg.RecoveryCodeLength)
	if err != nil {
		return providers.Result{}, autherr.Wrap(err, autherr.KindAuthenticationFailed, "Could not generate recovery codes")
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		if hashes[i], err = tokens.Hash(tokens.Default, c); err != nil {
			return providers.Result{}, autherr.Wrap(err, autherr.KindAuthenticationFailed, "Could not generate recovery codes")
		}
	}
	stored, err := e.seal(secret)
	if err != nil {
		return providers.Result{}, autherr.Wrap(err, autherr.KindMisconfigured, "MFA secret could not be sealed")
	}

	rec := Record{Status: StatusEnabled, Secret: stored, Recovery: hashes}
	if e.cfg.ReplayProtection {
		rec.LastStep = &step
	}
	metrics.MFAEvent("totp_enabled")
	logger.From(ctx).Info("mfa totp enabled",
		logger.Component("mfa"), logger.UserID(req.UserID), logger.MFAStatus(string(StatusEnabled)))
	return providers.Result{
		Save:     rec.AuthData(),
		Response: map[string]any{"recovery": strings.Join(codes, ",")},
	}, nil
}

func (e *Engine) confirmPending(ctx context.Context, rec Record, mobile, token string, req providers.Request) (providers.Result, error) {
	p, ok := rec.Pending[mobile]
	if !ok {
		return providers.Result{}, errNotPending
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(p.Token)) != 1 || e.cfg.Now().After(p.Expiry) {
		metrics.MFAEvent("enroll_rejected")
		return providers.Result{}, autherr.ErrMfaInvalidToken
	}
	enabled := Record{Status: StatusEnabled, Mobile: mobile}
	metrics.MFAEvent("sms_enabled")
	logger.From(ctx).Info("mfa sms enabled",
		logger.Component("mfa"), logger.UserID(req.UserID), logger.MFAStatus(string(StatusEnabled)))
	return providers.Result{Save: enabled.AuthData()}, nil
}

func (e *Engine) addPending(ctx context.Context, rec *Record, mobile string, req providers.Request) error {
	code, err := e.send(ctx, mobile, req)
	if err != nil {
		return err
	}
	rec.purgeExpired(e.cfg.Now())
	if rec.Pending == nil {
		rec.Pending = map[string]PendingCode{}
	}
	rec.Pending[mobile] = code
	return nil
}

func (e *Engine) send(ctx context.Context, mobile string, req providers.Request) (PendingCode, error) {
	if !mobilePattern.MatchString(mobile) {
		return PendingCode{}, errInvalidMobile
	}
	code, err := tokens.RandomDigits(e.cfg.Digits)
	if err != nil {
		return PendingCode{}, autherr.Wrap(err, autherr.KindAuthenticationFailed, "Could not generate MFA code")
	}
	if err := e.cfg.SendSMS(ctx, code, mobile); err != nil {
		logger.From(ctx).Warn("mfa sms delivery failed", logger.Component("mfa"),
			logger.String("mobile", util.MaskMobile(mobile)), logger.Err(err))
		return PendingCode{}, autherr.Wrap(err, autherr.KindAuthenticationFailed, "Could not send MFA code")
	}
	metrics.MFAEvent("sms_sent")
	logger.From(ctx).Debug("mfa sms sent", logger.Component("mfa"), logger.UserID(req.UserID),
		logger.String("mobile", util.MaskMobile(mobile)))
	return PendingCode{Token: code, Expiry: e.cfg.Now().Add(e.cfg.SMSTTL)}, nil
}

// verify checks value against the current factor of rec, consuming what
// must not be reused. changed reports whether rec was modified. Attempts are
// counted by the exported entry points, not here.
func (e *Engine) verify(ctx context.Context, rec *Record, value any, req providers.Request) (changed bool, err error) {
	token, ok := value.(string)
	if !ok {
		return false, autherr.ErrMfaInvalidData
	}
	now := e.cfg.Now()

	switch {
	case e.cfg.SMS && rec.Mobile != "":
		if rec.Token == "" || rec.Expiry == nil ||
			subtle.ConstantTimeCompare([]byte(token), []byte(rec.Token)) != 1 || now.After(*rec.Expiry) {
			return false, autherr.ErrMfaInvalidToken
		}
		rec.Token, rec.Expiry = "", nil
		return true, nil

	case e.cfg.TOTP && rec.Secret != "":
		// argon2 runs only for values shaped like a recovery code
		if len(token) == e.cfg.Digits {
			valid, changed, err := e.verifyTOTP(ctx, rec, token, now)
			if err != nil || valid {
				return changed, err
			}
		}
		if len(token) == e.cfg.RecoveryCodeLength && useRecovery(rec, token) {
			metrics.MFAEvent("recovery_used")
			return true, nil
		}
		return false, autherr.ErrMfaInvalidToken
	}
	return false, autherr.ErrMfaInvalidToken
}

func (e *Engine) verifyTOTP(ctx context.Context, rec *Record, token string, now time.Time) (valid, changed bool, err error) {
	secret, err := e.open(rec.Secret)
	if err != nil {
		logger.From(ctx).Error("mfa secret unreadable", logger.Component("mfa"), logger.Err(err))
		return false, false, errSecretUnreadable
	}
	raw, err := totp.DecodeSecret(secret)
	if err != nil {
		return false, false, errSecretUnreadable
	}
	var last *int64
	if e.cfg.ReplayProtection {
		last = rec.LastStep
	}
	valid, step := e.cfg.params().Verify(raw, token, now, e.cfg.Window, last)
	if !valid {
		return false, false, nil
	}
	if e.cfg.ReplayProtection {
		rec.LastStep = &step
		return true, true, nil
	}
	return true, false, nil
}

// useRecovery consumes the recovery code matching token, if any.
func useRecovery(rec *Record, token string) bool {
	for i, h := range rec.Recovery {
		if tokens.Verify(token, h) {
			rec.Recovery = append(rec.Recovery[:i:i], rec.Recovery[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Engine) allow(ctx context.Context, userID string) error {
	if e.cfg.Limiter == nil || userID == "" {
		return nil
	}
	res, err := e.cfg.Limiter.Allow(ctx, "mfa:"+userID)
	if err != nil {
		// limiter outage does not lock users out
		logger.From(ctx).Warn("mfa limiter unavailable", logger.Component("mfa"), logger.Err(err))
		return nil
	}
	if !res.Allowed {
		metrics.MFAEvent("rate_limited")
		return errTooManyAttempts
	}
	return nil
}

func (e *Engine) seal(secret string) (string, error) {
	if e.cfg.Box == nil {
		return secret, nil
	}
	return e.cfg.Box.Seal(secret)
}

func (e *Engine) open(stored string) (string, error) {
	if e.cfg.Box == nil || !secretbox.IsSealed(stored) {
		return stored, nil
	}
	return e.cfg.Box.Open(stored)
}
