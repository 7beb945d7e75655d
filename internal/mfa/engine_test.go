package mfa

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/providers"
	"github.com/dropDatabas3/authdata/internal/rate"
	"github.com/dropDatabas3/authdata/internal/security/secretbox"
	tokens "github.com/dropDatabas3/authdata/internal/security/token"
	"github.com/dropDatabas3/authdata/internal/security/totp"
)

const secret = "KBSWY3DPEHPK3PXPKBSWY3DPEHPK3PXP"

var t0 = time.Unix(1_700_000_000, 0)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type outbox struct {
	mu   sync.Mutex
	sent map[string]string // mobile -> last code
}

func (o *outbox) send(_ context.Context, code, mobile string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sent == nil {
		o.sent = map[string]string{}
	}
	o.sent[mobile] = code
	return nil
}

func (o *outbox) last(mobile string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent[mobile]
}

func code(t *testing.T, s string, at time.Time) string {
	t.Helper()
	raw, err := totp.DecodeSecret(s)
	require.NoError(t, err)
	c, err := totp.Default.Generate(raw, at)
	require.NoError(t, err)
	return c
}

// wrongCode differs from every code accepted around at.
func wrongCode(t *testing.T, s string, at time.Time) string {
	t.Helper()
	taken := map[string]bool{}
	for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		taken[code(t, s, at.Add(d))] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333"} {
		if !taken[c] {
			return c
		}
	}
	t.Fatal("no wrong code available")
	return ""
}

func newTOTP(t *testing.T, mut func(*Config)) (*Engine, *clock) {
	t.Helper()
	clk := &clock{now: t0}
	cfg := Config{TOTP: true, Now: clk.Now}
	if mut != nil {
		mut(&cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return e, clk
}

func newSMS(t *testing.T) (*Engine, *clock, *outbox) {
	t.Helper()
	clk := &clock{now: t0}
	box := &outbox{}
	e, err := New(Config{SMS: true, SendSMS: box.send, Now: clk.Now})
	require.NoError(t, err)
	return e, clk, box
}

func requireMessage(t *testing.T, err error, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, msg, err.Error())
	_, ok := autherr.As(err)
	assert.True(t, ok, "not an autherr: %T", err)
}

func enroll(t *testing.T, e *Engine) (providers.AuthData, []string) {
	t.Helper()
	res, err := e.Setup(context.Background(),
		providers.AuthData{"secret": secret, "token": code(t, secret, e.cfg.Now())},
		providers.Request{Mode: providers.ModeSetup, UserID: "u1"})
	require.NoError(t, err)
	return res.Save, strings.Split(res.Response["recovery"].(string), ",")
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{}, "mfa.options must include SMS or TOTP"},
		{Config{TOTP: true, Digits: 3}, "mfa.digits must be between 4 and 10"},
		{Config{TOTP: true, Digits: 11}, "mfa.digits must be between 4 and 10"},
		{Config{TOTP: true, Period: 5}, "mfa.period must be greater than 10"},
		{Config{TOTP: true, Algorithm: "MD5"}, "mfa.algorithm must be one of SHA1, SHA256, SHA512"},
		{Config{SMS: true}, "mfa.sendSMS callback must be defined when using SMS OTPs"},
	}
	for _, tc := range cases {
		_, err := New(tc.cfg)
		require.Error(t, err)
		assert.Equal(t, tc.want, err.Error())
		assert.True(t, autherr.IsKind(err, autherr.KindMisconfigured))
	}

	e, err := New(Config{TOTP: true})
	require.NoError(t, err)
	cfg := e.Config()
	assert.Equal(t, "SHA1", cfg.Algorithm)
	assert.Equal(t, 6, cfg.Digits)
	assert.Equal(t, 30, cfg.Period)
	assert.Equal(t, 30*time.Second, cfg.SMSTTL)
}

func TestTOTPEnrollment(t *testing.T) {
	e, _ := newTOTP(t, nil)
	saved, codes := enroll(t, e)

	assert.Len(t, codes, 2)
	assert.NotEqual(t, codes[0], codes[1])
	rec, err := ParseRecord(saved)
	require.NoError(t, err)
	assert.Equal(t, StatusEnabled, rec.Status)
	assert.Equal(t, secret, rec.Secret)
	require.Len(t, rec.Recovery, 2)
	for i, h := range rec.Recovery {
		assert.True(t, strings.HasPrefix(h, "$argon2id$"))
		assert.NotContains(t, h, codes[i])
	}
	assert.Equal(t, providers.PolicyAdditional, e.Policy(saved))
	assert.Equal(t, providers.AuthData{"status": "enabled"}, e.Project(saved, providers.Request{}))
	assert.Equal(t, saved, e.Project(saved, providers.Request{Master: true}))
}

func TestTOTPEnrollmentRejections(t *testing.T) {
	e, clk := newTOTP(t, nil)
	req := providers.Request{Mode: providers.ModeSetup}

	_, err := e.Setup(context.Background(), providers.AuthData{"secret": "SHORT", "token": "123456"}, req)
	requireMessage(t, err, "Invalid MFA data")

	_, err = e.Setup(context.Background(), providers.AuthData{"secret": secret}, req)
	requireMessage(t, err, "Invalid MFA data")

	stale := code(t, secret, clk.now.Add(-2*time.Minute))
	_, err = e.Setup(context.Background(), providers.AuthData{"secret": secret, "token": stale}, req)
	requireMessage(t, err, "Invalid MFA token")
}

func TestTOTPLogin(t *testing.T) {
	e, clk := newTOTP(t, nil)
	saved, codes := enroll(t, e)
	ctx := context.Background()
	req := providers.Request{Mode: providers.ModeLogin, UserID: "u1"}

	clk.now = clk.now.Add(30 * time.Second)
	res, err := e.Login(ctx, providers.AuthData{"token": code(t, secret, clk.now)}, req, saved)
	require.NoError(t, err)
	assert.True(t, res.DoNotSave)

	// one step of tolerance
	res, err = e.Login(ctx, providers.AuthData{"token": code(t, secret, clk.now.Add(-30*time.Second))}, req, saved)
	require.NoError(t, err)

	_, err = e.Login(ctx, providers.AuthData{"token": wrongCode(t, secret, clk.now)}, req, saved)
	requireMessage(t, err, "Invalid MFA token")

	_, err = e.Login(ctx, providers.AuthData{"token": 123456}, req, saved)
	requireMessage(t, err, "Invalid MFA data")

	_, err = e.Login(ctx, providers.AuthData{"token": RequestToken}, req, saved)
	requireMessage(t, err, "Invalid MFA token")

	// recovery codes work once
	res, err = e.Login(ctx, providers.AuthData{"token": codes[0]}, req, saved)
	require.NoError(t, err)
	require.NotNil(t, res.Save)
	_, err = e.Login(ctx, providers.AuthData{"token": codes[0]}, req, res.Save)
	requireMessage(t, err, "Invalid MFA token")
	_, err = e.Login(ctx, providers.AuthData{"token": codes[1]}, req, res.Save)
	require.NoError(t, err)
}

func TestTOTPRotationNeedsOldToken(t *testing.T) {
	e, clk := newTOTP(t, nil)
	saved, _ := enroll(t, e)
	const next = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	req := providers.Request{Mode: providers.ModeUpdate, UserID: "u1"}

	_, err := e.Update(context.Background(), providers.AuthData{
		"secret": next, "token": code(t, next, clk.now), "old": wrongCode(t, secret, clk.now),
	}, req, saved)
	requireMessage(t, err, "Invalid MFA token")

	_, err = e.Update(context.Background(), providers.AuthData{
		"secret": next, "token": code(t, next, clk.now),
	}, req, saved)
	requireMessage(t, err, "Invalid MFA data")

	res, err := e.Update(context.Background(), providers.AuthData{
		"secret": next, "token": code(t, next, clk.now), "old": code(t, secret, clk.now),
	}, req, saved)
	require.NoError(t, err)
	rec, _ := ParseRecord(res.Save)
	assert.Equal(t, next, rec.Secret)
	assert.NotEmpty(t, res.Response["recovery"])

	// master bypasses proof and keeps the incoming payload
	res, err = e.Update(context.Background(), providers.AuthData{"secret": next}, providers.Request{Master: true}, saved)
	require.NoError(t, err)
	assert.Nil(t, res.Save)
}

func TestTOTPReplayProtection(t *testing.T) {
	e, clk := newTOTP(t, func(c *Config) { c.ReplayProtection = true })
	saved, _ := enroll(t, e)
	req := providers.Request{Mode: providers.ModeLogin}

	clk.now = clk.now.Add(60 * time.Second)
	tok := code(t, secret, clk.now)
	res, err := e.Login(context.Background(), providers.AuthData{"token": tok}, req, saved)
	require.NoError(t, err)
	require.NotNil(t, res.Save)

	_, err = e.Login(context.Background(), providers.AuthData{"token": tok}, req, res.Save)
	requireMessage(t, err, "Invalid MFA token")
}

func TestTOTPSecretSealedAtRest(t *testing.T) {
	box, err := secretbox.New(strings.Repeat("k", 32))
	require.NoError(t, err)
	e, clk := newTOTP(t, func(c *Config) { c.Box = box })
	saved, _ := enroll(t, e)

	rec, _ := ParseRecord(saved)
	assert.NotEqual(t, secret, rec.Secret)
	assert.True(t, secretbox.IsSealed(rec.Secret))

	_, err = e.Login(context.Background(), providers.AuthData{"token": code(t, secret, clk.now)},
		providers.Request{Mode: providers.ModeLogin}, saved)
	require.NoError(t, err)
}

func TestAttemptLimiter(t *testing.T) {
	lim := rate.NewMemoryLimiter(2, time.Minute)
	e, clk := newTOTP(t, func(c *Config) { c.Limiter = lim })
	lim.Now = func() time.Time { return clk.now }

	res, err := e.Setup(context.Background(),
		providers.AuthData{"secret": secret, "token": code(t, secret, clk.now)},
		providers.Request{UserID: "u1"})
	require.NoError(t, err)

	req := providers.Request{Mode: providers.ModeLogin, UserID: "u1"}
	_, err = e.Login(context.Background(), providers.AuthData{"token": code(t, secret, clk.now)}, req, res.Save)
	require.NoError(t, err)
	_, err = e.Login(context.Background(), providers.AuthData{"token": code(t, secret, clk.now)}, req, res.Save)
	requireMessage(t, err, "Too many MFA attempts. Try again later.")
}

func TestSMSEnrollmentIsTwoPhase(t *testing.T) {
	e, clk, box := newSMS(t)
	ctx := context.Background()
	const mobile = "+11111111111"

	res, err := e.Setup(ctx, providers.AuthData{"mobile": mobile}, providers.Request{Mode: providers.ModeSetup})
	require.NoError(t, err)
	rec, _ := ParseRecord(res.Save)
	assert.Equal(t, StatusDisabled, rec.Status)
	assert.Equal(t, StatusPending, rec.State())
	require.Contains(t, rec.Pending, mobile)
	assert.Len(t, box.last(mobile), 6)
	assert.Equal(t, clk.now.Add(30*time.Second).Unix(), rec.Pending[mobile].Expiry.Unix())

	// pending users are not challenged
	assert.Equal(t, providers.PolicyDefault, e.Policy(res.Save))
	login, err := e.Login(ctx, providers.AuthData{}, providers.Request{Mode: providers.ModeLogin}, res.Save)
	require.NoError(t, err)
	assert.True(t, login.DoNotSave)
	assert.Equal(t, providers.AuthData{"status": "disabled"}, e.Project(res.Save, providers.Request{}))

	upd := providers.Request{Mode: providers.ModeUpdate}
	_, err = e.Update(ctx, providers.AuthData{"mobile": "+22222222222", "token": "123456"}, upd, res.Save)
	requireMessage(t, err, "This number is not pending")

	wrong := "000000"
	if box.last(mobile) == wrong {
		wrong = "999999"
	}
	_, err = e.Update(ctx, providers.AuthData{"mobile": mobile, "token": wrong}, upd, res.Save)
	requireMessage(t, err, "Invalid MFA token")

	done, err := e.Update(ctx, providers.AuthData{"mobile": mobile, "token": box.last(mobile)}, upd, res.Save)
	require.NoError(t, err)
	rec, _ = ParseRecord(done.Save)
	assert.Equal(t, StatusEnabled, rec.Status)
	assert.Equal(t, mobile, rec.Mobile)
	assert.Empty(t, rec.Pending)
}

func TestSMSExpiredPendingCode(t *testing.T) {
	e, clk, box := newSMS(t)
	const mobile = "+11111111111"
	res, err := e.Setup(context.Background(), providers.AuthData{"mobile": mobile}, providers.Request{})
	require.NoError(t, err)

	clk.now = clk.now.Add(31 * time.Second)
	_, err = e.Update(context.Background(), providers.AuthData{"mobile": mobile, "token": box.last(mobile)},
		providers.Request{Mode: providers.ModeUpdate}, res.Save)
	requireMessage(t, err, "Invalid MFA token")
}

func TestSMSRejectsBadMobile(t *testing.T) {
	e, _, _ := newSMS(t)
	_, err := e.Setup(context.Background(), providers.AuthData{"mobile": "call me"}, providers.Request{})
	requireMessage(t, err, "Invalid mobile number.")
}

func enabledSMS(t *testing.T, e *Engine, box *outbox, mobile string) providers.AuthData {
	t.Helper()
	res, err := e.Setup(context.Background(), providers.AuthData{"mobile": mobile}, providers.Request{})
	require.NoError(t, err)
	done, err := e.Update(context.Background(), providers.AuthData{"mobile": mobile, "token": box.last(mobile)},
		providers.Request{Mode: providers.ModeUpdate}, res.Save)
	require.NoError(t, err)
	return done.Save
}

func TestSMSLoginChallenge(t *testing.T) {
	e, clk, box := newSMS(t)
	const mobile = "+11111111111"
	saved := enabledSMS(t, e, box, mobile)
	ctx := context.Background()
	req := providers.Request{Mode: providers.ModeLogin}

	res, err := e.Login(ctx, providers.AuthData{"token": RequestToken}, req, saved)
	require.NoError(t, err)
	require.NotNil(t, res.Save)
	assert.True(t, errors.Is(res.Reject, autherr.ErrMfaTokenRequested))
	assert.Equal(t, "Please enter the token", res.Reject.Error())

	sent := box.last(mobile)
	clk.now = clk.now.Add(10 * time.Second)
	ok, err := e.Login(ctx, providers.AuthData{"token": sent}, req, res.Save)
	require.NoError(t, err)
	rec, _ := ParseRecord(ok.Save)
	assert.Empty(t, rec.Token)
	assert.Nil(t, rec.Expiry)

	// consumed
	_, err = e.Login(ctx, providers.AuthData{"token": sent}, req, ok.Save)
	requireMessage(t, err, "Invalid MFA token")
}

func TestSMSChangeNumberWhenEnabled(t *testing.T) {
	e, _, box := newSMS(t)
	const mobile, next = "+11111111111", "+12222222222"
	saved := enabledSMS(t, e, box, mobile)
	ctx := context.Background()
	upd := providers.Request{Mode: providers.ModeUpdate}

	_, err := e.Update(ctx, providers.AuthData{"mobile": next}, upd, saved)
	requireMessage(t, err, "MFA is already set up on this account")

	req, err := e.Login(ctx, providers.AuthData{"token": RequestToken}, providers.Request{}, saved)
	require.NoError(t, err)
	res, err := e.Update(ctx, providers.AuthData{"mobile": next, "old": box.last(mobile)}, upd, req.Save)
	require.NoError(t, err)
	rec, _ := ParseRecord(res.Save)
	assert.Equal(t, mobile, rec.Mobile)
	require.Contains(t, rec.Pending, next)

	done, err := e.Update(ctx, providers.AuthData{"mobile": next, "token": box.last(next)}, upd, res.Save)
	require.NoError(t, err)
	rec, _ = ParseRecord(done.Save)
	assert.Equal(t, next, rec.Mobile)
}

func TestUnlink(t *testing.T) {
	e, clk := newTOTP(t, nil)
	saved, _ := enroll(t, e)
	ctx := context.Background()

	require.NoError(t, e.Unlink(ctx, nil, providers.Request{Master: true}, saved))
	requireMessage(t, e.Unlink(ctx, providers.AuthData{"token": "000000x"}, providers.Request{}, saved), "Invalid MFA token")
	require.NoError(t, e.Unlink(ctx, providers.AuthData{"token": code(t, secret, clk.now)}, providers.Request{}, saved))
	require.NoError(t, e.Unlink(ctx, nil, providers.Request{}, nil))
}

func TestTOTPCodesAreNotCheckedAgainstRecoveryHashes(t *testing.T) {
	e, clk := newTOTP(t, nil)
	saved, codes := enroll(t, e)
	ctx := context.Background()
	req := providers.Request{Mode: providers.ModeLogin, UserID: "u1"}

	// a 6 digit value stored as a recovery hash still does not pass
	wrong := wrongCode(t, secret, clk.now)
	h, err := tokens.Hash(tokens.Default, wrong)
	require.NoError(t, err)
	rec, err := ParseRecord(saved)
	require.NoError(t, err)
	rec.Recovery = append(rec.Recovery, h)
	_, err = e.Login(ctx, providers.AuthData{"token": wrong}, req, rec.AuthData())
	requireMessage(t, err, "Invalid MFA token")

	// unreadable hashes are never reached by a valid code
	rec.Recovery = []string{"not-a-hash"}
	res, err := e.Login(ctx, providers.AuthData{"token": code(t, secret, clk.now)}, req, rec.AuthData())
	require.NoError(t, err)
	assert.True(t, res.DoNotSave)

	// wrong length for both factors
	_, err = e.Login(ctx, providers.AuthData{"token": codes[0][:10]}, req, saved)
	requireMessage(t, err, "Invalid MFA token")
	res, err = e.Login(ctx, providers.AuthData{"token": codes[0]}, req, saved)
	require.NoError(t, err)
	rec, _ = ParseRecord(res.Save)
	assert.Len(t, rec.Recovery, len(codes)-1)
}

type countingLimiter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string) (rate.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hits == nil {
		l.hits = map[string]int{}
	}
	l.hits[key]++
	return rate.Result{Allowed: true, CurrentHits: int64(l.hits[key])}, nil
}

func (l *countingLimiter) count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hits[key]
}

func TestEachOperationCountsOneAttempt(t *testing.T) {
	lim := &countingLimiter{}
	e, clk := newTOTP(t, func(c *Config) { c.Limiter = lim })
	ctx := context.Background()
	req := providers.Request{Mode: providers.ModeUpdate, UserID: "u1"}

	saved, _ := enroll(t, e)
	assert.Equal(t, 1, lim.count("mfa:u1"))

	const next = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	_, err := e.Update(ctx, providers.AuthData{
		"secret": next, "token": code(t, next, clk.now), "old": code(t, secret, clk.now),
	}, req, saved)
	require.NoError(t, err)
	assert.Equal(t, 2, lim.count("mfa:u1"))

	require.NoError(t, e.Unlink(ctx, providers.AuthData{"token": code(t, secret, clk.now)}, req, saved))
	assert.Equal(t, 3, lim.count("mfa:u1"))

	// sms number change on an enabled factor
	box := &outbox{}
	sms, err := New(Config{SMS: true, SendSMS: box.send, Now: clk.Now, Limiter: lim})
	require.NoError(t, err)
	const mobile, other = "+11111111111", "+12222222222"
	enabled := enabledSMS(t, sms, box, mobile)
	challenge, err := sms.Login(ctx, providers.AuthData{"token": RequestToken}, providers.Request{UserID: "u2"}, enabled)
	require.NoError(t, err)
	assert.Equal(t, 1, lim.count("mfa:u2"))

	_, err = sms.Update(ctx, providers.AuthData{"mobile": other, "old": box.last(mobile)},
		providers.Request{Mode: providers.ModeUpdate, UserID: "u2"}, challenge.Save)
	require.NoError(t, err)
	assert.Equal(t, 2, lim.count("mfa:u2"))
}

func TestLoginDropsExpiredPendingCodes(t *testing.T) {
	e, clk, box := newSMS(t)
	ctx := context.Background()
	const mobile, next = "+11111111111", "+12222222222"
	login := providers.Request{Mode: providers.ModeLogin}

	// abandoned enrollment
	started, err := e.Setup(ctx, providers.AuthData{"mobile": next}, providers.Request{})
	require.NoError(t, err)
	clk.now = clk.now.Add(31 * time.Second)
	res, err := e.Login(ctx, providers.AuthData{}, login, started.Save)
	require.NoError(t, err)
	require.NotNil(t, res.Save)
	rec, _ := ParseRecord(res.Save)
	assert.Empty(t, rec.Pending)
	assert.Equal(t, StatusDisabled, rec.State())

	// abandoned number change on an enabled factor
	saved := enabledSMS(t, e, box, mobile)
	challenge, err := e.Login(ctx, providers.AuthData{"token": RequestToken}, login, saved)
	require.NoError(t, err)
	changing, err := e.Update(ctx, providers.AuthData{"mobile": next, "old": box.last(mobile)},
		providers.Request{Mode: providers.ModeUpdate}, challenge.Save)
	require.NoError(t, err)
	rec, _ = ParseRecord(changing.Save)
	require.Contains(t, rec.Pending, next)

	clk.now = clk.now.Add(31 * time.Second)
	res, err = e.Login(ctx, providers.AuthData{"token": RequestToken}, login, changing.Save)
	require.NoError(t, err)
	rec, _ = ParseRecord(res.Save)
	assert.Empty(t, rec.Pending)
	assert.Equal(t, StatusEnabled, rec.State())
	assert.Equal(t, mobile, rec.Mobile)
}
