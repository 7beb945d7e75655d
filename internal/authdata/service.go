// Package authdata applies validated authData to a user's stored record:
// login challenges, linking, unlinking and the client-visible projection.
package authdata

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authdata/internal/audit"
	"github.com/dropDatabas3/authdata/internal/auth"
	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/metrics"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
	"github.com/dropDatabas3/authdata/internal/providers"
	"github.com/dropDatabas3/authdata/internal/store/core"
)

// Outcome is what login and save report to the client.
type Outcome struct {
	AuthData map[string]providers.AuthData `json:"authData"`
	// Response holds the per-provider authDataResponse, omitted when empty.
	Response map[string]map[string]any `json:"authDataResponse,omitempty"`
}

// Service operates on user authData records.
type Service interface {
	// Validate runs one provider's validator without touching the store.
	Validate(ctx context.Context, provider string, authData providers.AuthData, req providers.Request) (providers.Result, error)

	// Login checks every incoming provider against the user's record.
	Login(ctx context.Context, userID string, incoming map[string]providers.AuthData) (*Outcome, error)

	// Save links or updates the incoming providers. A nil payload unlinks.
	Save(ctx context.Context, userID string, incoming map[string]providers.AuthData, req providers.Request) (*Outcome, error)

	// Unlink removes one provider after its adapter approves.
	Unlink(ctx context.Context, userID, provider string, proof providers.AuthData, req providers.Request) error

	// Get returns the projected record.
	Get(ctx context.Context, userID string, req providers.Request) (map[string]providers.AuthData, error)
}

type Deps struct {
	Handler *auth.Handler
	Store   core.Store
	// AllowExpiredAuthDataToken skips revalidation at login of a provider
	// whose incoming authData equals the stored payload.
	AllowExpiredAuthDataToken bool
}

var ErrUserNotFound = autherr.New(autherr.KindNotFound, "User not found.")

type service struct {
	handler      *auth.Handler
	store        core.Store
	allowExpired bool
}

func NewService(d Deps) Service {
	return &service{handler: d.Handler, store: d.Store, allowExpired: d.AllowExpiredAuthDataToken}
}

func (s *service) Validate(ctx context.Context, provider string, authData providers.AuthData, req providers.Request) (providers.Result, error) {
	b, err := s.handler.ValidatorForProvider(ctx, provider)
	if err != nil {
		return providers.Result{}, err
	}
	return b.Validator(ctx, authData, req, nil)
}

func (s *service) Login(ctx context.Context, userID string, incoming map[string]providers.AuthData) (*Outcome, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("authdata.login"), logger.UserID(userID))
	req := providers.Request{Mode: providers.ModeLogin, UserID: userID}

	// 1. Load record; a missing user has nothing stored
	rec, err := s.load(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	// 2. Bind stored and incoming providers
	bindings, err := s.bind(ctx, rec.Providers, incoming)
	if err != nil {
		return nil, err
	}

	// 3. Additional policies, unless a solo provider is presented
	if err := s.enforcePolicies(rec, incoming, bindings); err != nil {
		log.Info("login missing additional provider", logger.Err(err))
		return nil, err
	}

	// 4. Validate incoming
	next := rec.Clone()
	changed := false
	var (
		responses map[string]map[string]any
		reject    error
	)
	for _, name := range sortedKeys(incoming) {
		data := incoming[name]
		stored := rec.Providers[name]
		if data == nil {
			return nil, autherr.Newf(autherr.KindInvalidRequest, "authData %s must be an object.", name)
		}
		if s.allowExpired && stored != nil && data.Equal(stored) {
			continue
		}
		res, err := bindings[name].Validator(ctx, data, req, stored)
		if err != nil {
			return nil, err
		}
		if res.Response != nil {
			responses = setResponse(responses, name, res.Response)
		}
		if res.Save != nil && !res.DoNotSave {
			next.Providers[name] = res.Save.Clone()
			changed = true
		}
		if res.Reject != nil && reject == nil {
			reject = res.Reject
		}
	}

	// 5. Persist, then surface a deferred rejection
	if changed {
		if next, err = s.write(ctx, userID, rec.Version, next); err != nil {
			return nil, err
		}
	}
	if reject != nil {
		e := autherr.FromError(reject)
		audit.Log(ctx, audit.EventRejected, userID, sortedKeys(incoming), logger.ErrorCode(int(e.Code)))
		return nil, e
	}
	return &Outcome{AuthData: s.project(next.Providers, bindings, req), Response: responses}, nil
}

func (s *service) Save(ctx context.Context, userID string, incoming map[string]providers.AuthData, req providers.Request) (*Outcome, error) {
	req.UserID = userID

	rec, err := s.load(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	bindings, err := s.bind(ctx, nil, incoming)
	if err != nil {
		return nil, err
	}

	next := rec.Clone()
	var (
		responses                 map[string]map[string]any
		reject                    error
		linked, updated, unlinked []string
	)
	for _, name := range sortedKeys(incoming) {
		data := incoming[name]
		stored := rec.Providers[name]
		b := bindings[name]

		if data == nil {
			if stored == nil {
				continue
			}
			if err := b.Unlink(ctx, nil, req, stored); err != nil {
				return nil, err
			}
			delete(next.Providers, name)
			unlinked = append(unlinked, name)
			continue
		}

		r := req
		r.Mode = providers.ModeSetup
		if stored != nil {
			r.Mode = providers.ModeUpdate
		}
		res, err := b.Validator(ctx, data, r, stored)
		if err != nil {
			return nil, err
		}
		if res.Response != nil {
			responses = setResponse(responses, name, res.Response)
		}
		switch {
		case res.DoNotSave:
		case res.Save != nil:
			next.Providers[name] = res.Save.Clone()
		default:
			next.Providers[name] = data.Clone()
		}
		if !res.DoNotSave {
			if stored == nil {
				linked = append(linked, name)
			} else {
				updated = append(updated, name)
			}
		}
		if res.Reject != nil && reject == nil {
			reject = res.Reject
		}
	}

	if next, err = s.write(ctx, userID, rec.Version, next); err != nil {
		return nil, err
	}
	master := zap.Bool("master", req.Master)
	if len(linked) > 0 {
		audit.Log(ctx, audit.EventLinked, userID, linked, master)
	}
	if len(updated) > 0 {
		audit.Log(ctx, audit.EventUpdated, userID, updated, master)
	}
	if len(unlinked) > 0 {
		audit.Log(ctx, audit.EventUnlinked, userID, unlinked, master)
	}
	if reject != nil {
		return nil, autherr.FromError(reject)
	}
	all, err := s.bind(ctx, next.Providers, nil)
	if err != nil {
		return nil, err
	}
	return &Outcome{AuthData: s.project(next.Providers, all, req), Response: responses}, nil
}

func (s *service) Unlink(ctx context.Context, userID, provider string, proof providers.AuthData, req providers.Request) error {
	req.UserID = userID
	rec, err := s.load(ctx, userID, false)
	if err != nil {
		return err
	}
	stored, ok := rec.Providers[provider]
	if !ok {
		return nil
	}
	b, err := s.handler.ValidatorForProvider(ctx, provider)
	switch {
	case errors.Is(err, autherr.ErrUnsupportedService):
		// provider no longer configured; nothing can approve or veto
	case err != nil:
		return err
	default:
		if err := b.Unlink(ctx, proof, req, stored); err != nil {
			return err
		}
	}
	next := rec.Clone()
	delete(next.Providers, provider)
	if _, err = s.write(ctx, userID, rec.Version, next); err != nil {
		return err
	}
	audit.Log(ctx, audit.EventUnlinked, userID, []string{provider}, zap.Bool("master", req.Master))
	return nil
}

func (s *service) Get(ctx context.Context, userID string, req providers.Request) (map[string]providers.AuthData, error) {
	req.UserID = userID
	rec, err := s.load(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	bindings, err := s.bind(ctx, rec.Providers, nil)
	if err != nil {
		return nil, err
	}
	return s.project(rec.Providers, bindings, req), nil
}

func (s *service) load(ctx context.Context, userID string, allowMissing bool) (core.Record, error) {
	rec, err := s.store.Get(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		if !allowMissing {
			return core.Record{}, ErrUserNotFound
		}
		return core.Record{UserID: userID, Providers: map[string]providers.AuthData{}}, nil
	}
	if err != nil {
		logger.From(ctx).Error("load authData failed", logger.Layer("service"), logger.UserID(userID), logger.Err(err))
		return core.Record{}, autherr.Wrap(err, autherr.KindAuthenticationFailed, "Could not load authData.")
	}
	if rec.Providers == nil {
		rec.Providers = map[string]providers.AuthData{}
	}
	return rec, nil
}

func (s *service) write(ctx context.Context, userID string, expected int64, rec core.Record) (core.Record, error) {
	out, err := s.store.CompareAndSwap(ctx, userID, expected, rec)
	if errors.Is(err, core.ErrConflict) {
		metrics.StoreConflicts.Inc()
		logger.From(ctx).Info("authData changed concurrently", logger.Layer("service"),
			logger.UserID(userID), logger.Version(expected))
		return core.Record{}, autherr.Wrap(err, autherr.KindConflict, "authData was modified concurrently. Retry the request.")
	}
	if err != nil {
		logger.From(ctx).Error("store authData failed", logger.Layer("service"), logger.UserID(userID), logger.Err(err))
		return core.Record{}, autherr.Wrap(err, autherr.KindAuthenticationFailed, "Could not save authData.")
	}
	return out, nil
}

// bind resolves incoming providers strictly and stored ones leniently: a
// stored provider that is no longer configured is kept but has no binding.
func (s *service) bind(ctx context.Context, stored, incoming map[string]providers.AuthData) (map[string]*auth.Binding, error) {
	out := make(map[string]*auth.Binding, len(stored)+len(incoming))
	for name := range incoming {
		b, err := s.handler.ValidatorForProvider(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = b
	}
	for name := range stored {
		if _, ok := out[name]; ok {
			continue
		}
		if b, err := s.handler.ValidatorForProvider(ctx, name); err == nil {
			out[name] = b
		}
	}
	return out, nil
}

func (s *service) enforcePolicies(rec core.Record, incoming map[string]providers.AuthData, bindings map[string]*auth.Binding) error {
	for name := range incoming {
		if b, ok := bindings[name]; ok && b.Policy(rec.Providers[name]) == providers.PolicySolo {
			return nil
		}
	}
	for _, name := range sortedKeys(rec.Providers) {
		b, ok := bindings[name]
		if !ok {
			continue
		}
		if b.Policy(rec.Providers[name]) != providers.PolicyAdditional {
			continue
		}
		if _, present := incoming[name]; !present {
			return autherr.MissingAdditional(name)
		}
	}
	return nil
}

func (s *service) project(stored map[string]providers.AuthData, bindings map[string]*auth.Binding, req providers.Request) map[string]providers.AuthData {
	out := make(map[string]providers.AuthData, len(stored))
	for name, data := range stored {
		if b, ok := bindings[name]; ok {
			out[name] = b.Project(data.Clone(), req)
			continue
		}
		out[name] = data.Clone()
	}
	return out
}

func setResponse(m map[string]map[string]any, name string, resp map[string]any) map[string]map[string]any {
	if m == nil {
		m = map[string]map[string]any{}
	}
	m[name] = resp
	return m
}

func sortedKeys(m map[string]providers.AuthData) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
