// Package mfa exposes the mfa engine as the reserved "mfa" provider.
//
// Options: options ["TOTP"|"SMS"], digits, period, algorithm, sendSMS (a
// func, in code) or smsWebhook (URL receiving {"code","mobile"} as JSON),
// smsTTL, replayProtection, recoveryCodes.
package mfa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/authdata/internal/autherr"
	engine "github.com/dropDatabas3/authdata/internal/mfa"
	"github.com/dropDatabas3/authdata/internal/providers"
	"github.com/dropDatabas3/authdata/internal/rate"
	"github.com/dropDatabas3/authdata/internal/security/secretbox"
)

// Name is the reserved provider name.
const Name = "mfa"

// Deps are process-wide collaborators shared by every mfa adapter.
type Deps struct {
	Box     *secretbox.Box
	Limiter rate.Limiter
	HTTP    *http.Client
	Now     func() time.Time
}

// Adapter routes each request mode to the engine.
type Adapter struct {
	providers.NoAppID

	Engine *engine.Engine
}

// Factory builds the adapter from provider options.
func Factory(deps Deps) providers.Factory {
	return func(opts providers.Options) (providers.Adapter, error) {
		cfg, err := ConfigFromOptions(opts, deps)
		if err != nil {
			return nil, autherr.Wrap(err, autherr.KindMisconfigured, err.Error())
		}
		e, err := engine.New(cfg)
		if err != nil {
			return nil, err
		}
		return &Adapter{Engine: e}, nil
	}
}

// ConfigFromOptions translates provider options into an engine config.
func ConfigFromOptions(opts providers.Options, deps Deps) (engine.Config, error) {
	cfg := engine.Config{Box: deps.Box, Limiter: deps.Limiter, Now: deps.Now}

	kinds, isList := opts.Strings("options")
	if !isList {
		return cfg, errors.New("mfa.options must be an array")
	}
	for _, k := range kinds {
		switch strings.ToUpper(k) {
		case "TOTP":
			cfg.TOTP = true
		case "SMS":
			cfg.SMS = true
		}
	}

	var ok bool
	if _, set := opts["digits"]; set {
		if cfg.Digits, ok = number(opts, "digits"); !ok {
			return cfg, errors.New("mfa.digits must be a number")
		}
	}
	if _, set := opts["period"]; set {
		if cfg.Period, ok = number(opts, "period"); !ok {
			return cfg, errors.New("mfa.period must be a number")
		}
	}
	cfg.Algorithm = opts.String("algorithm")
	cfg.ReplayProtection = opts.Bool("replayProtection")
	if n, ok := opts.Int("recoveryCodes"); ok {
		cfg.RecoveryCodes = n
	}
	if d, ok := opts.Duration("smsTTL"); ok {
		cfg.SMSTTL = d
	}

	switch fn := opts["sendSMS"].(type) {
	case engine.SMSSender:
		cfg.SendSMS = fn
	case func(ctx context.Context, code, mobile string) error:
		cfg.SendSMS = fn
	case func(code, mobile string) error:
		cfg.SendSMS = func(_ context.Context, code, mobile string) error { return fn(code, mobile) }
	}
	if cfg.SendSMS == nil {
		if hook := opts.String("smsWebhook"); hook != "" {
			cfg.SendSMS = Webhook(deps.HTTP, hook)
		}
	}
	return cfg, nil
}

// number accepts only numeric option values; strings are rejected.
func number(opts providers.Options, k string) (int, bool) {
	if _, isString := opts[k].(string); isString {
		return 0, false
	}
	return opts.Int(k)
}

// Webhook delivers SMS codes by POSTing {"code","mobile"} to url.
func Webhook(client *http.Client, url string) engine.SMSSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context, code, mobile string) error {
		body, _ := json.Marshal(map[string]string{"code": code, "mobile": mobile})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("sms webhook responded %d", resp.StatusCode)
		}
		return nil
	}
}

// ValidateAuthData is the mode-less path (stateless validation): a user with
// an enabled factor is challenged, anyone else is enrolled.
func (a *Adapter) ValidateAuthData(ctx context.Context, authData providers.AuthData, _ providers.Options, existing providers.AuthData) (providers.Result, error) {
	if rec, err := engine.ParseRecord(existing); err == nil && rec.Enabled() {
		return a.Engine.Login(ctx, authData, providers.Request{Mode: providers.ModeLogin}, existing)
	}
	return a.Engine.Setup(ctx, authData, providers.Request{Mode: providers.ModeSetup})
}

func (a *Adapter) ValidateSetup(ctx context.Context, authData providers.AuthData, _ providers.Options, req providers.Request) (providers.Result, error) {
	return a.Engine.Setup(ctx, authData, req)
}

func (a *Adapter) ValidateUpdate(ctx context.Context, authData providers.AuthData, _ providers.Options, req providers.Request, existing providers.AuthData) (providers.Result, error) {
	return a.Engine.Update(ctx, authData, req, existing)
}

func (a *Adapter) ValidateLogin(ctx context.Context, authData providers.AuthData, _ providers.Options, req providers.Request, existing providers.AuthData) (providers.Result, error) {
	return a.Engine.Login(ctx, authData, req, existing)
}

func (a *Adapter) ValidateUnlink(ctx context.Context, proof providers.AuthData, _ providers.Options, req providers.Request, existing providers.AuthData) error {
	return a.Engine.Unlink(ctx, proof, req, existing)
}

func (a *Adapter) Policy(stored providers.AuthData) providers.Policy {
	return a.Engine.Policy(stored)
}

func (a *Adapter) Project(stored providers.AuthData, req providers.Request) providers.AuthData {
	return a.Engine.Project(stored, req)
}
