// Package providers defines the contract every third-party auth adapter
// implements, plus the helpers adapters share.
//
// Architecture:
//   - Adapter: the two-operation contract (ValidateAppID / ValidateAuthData)
//   - Optional capabilities, discovered with type assertions: OptionsValidator,
//     SetupValidator, UpdateValidator, LoginValidator, PolicyProvider,
//     Projector, UnlinkValidator
//   - Funcs: adapter built from closures (inline adapters)
//   - Module registry: named factories, plus Go plugins for filesystem paths
//
// Built-in adapters live in one sub-package per provider.
package providers

import (
	"context"
)

// Adapter validates a provider's app ids and credentials.
type Adapter interface {
	// ValidateAppID rejects authData obtained for an app id not in appIDs.
	// Called only when the provider configuration declares appIds.
	ValidateAppID(ctx context.Context, appIDs []string, authData AuthData, opts Options) error
	// ValidateAuthData rejects authData that does not prove control of the
	// external identity it names. existing is the payload currently stored
	// for this provider on the user (nil when none).
	ValidateAuthData(ctx context.Context, authData AuthData, opts Options, existing AuthData) (Result, error)
}

// Factory builds an adapter from its provider options.
type Factory func(opts Options) (Adapter, error)

// Mode tells an adapter which request path it is validating.
type Mode string

const (
	ModeLogin  Mode = "login"
	ModeSetup  Mode = "setup"
	ModeUpdate Mode = "update"
)

// Request describes the request a validation runs for.
type Request struct {
	Mode   Mode
	UserID string
	// Master requests (operator/maintenance) skip user-facing checks such as
	// MFA proof on update or unlink.
	Master bool
}

// Result is what a successful validation reports back.
type Result struct {
	// Claims are the verified claims, when the adapter has any.
	Claims map[string]any
	// Save replaces the payload persisted for the provider. Nil persists the
	// incoming authData on save paths and leaves the record alone on login.
	Save AuthData
	// DoNotSave keeps the stored payload untouched even on save paths.
	DoNotSave bool
	// Response is returned to the client once (authDataResponse).
	Response map[string]any
	// Reject fails the request after Save has been persisted.
	Reject error
}

// Policy controls how a stored provider participates in login.
type Policy string

const (
	// PolicyDefault: the provider is checked only when present in the login.
	PolicyDefault Policy = "default"
	// PolicyAdditional: once stored, every login must also carry this
	// provider's authData.
	PolicyAdditional Policy = "additional"
	// PolicySolo: the provider alone authenticates the login.
	PolicySolo Policy = "solo"
)

// OptionsValidator checks provider options once, when the adapter is loaded.
type OptionsValidator interface {
	ValidateOptions(opts Options) error
}

// SetupValidator handles a save for a provider the user has no data for yet.
type SetupValidator interface {
	ValidateSetup(ctx context.Context, authData AuthData, opts Options, req Request) (Result, error)
}

// UpdateValidator handles a save for a provider already stored on the user.
type UpdateValidator interface {
	ValidateUpdate(ctx context.Context, authData AuthData, opts Options, req Request, existing AuthData) (Result, error)
}

// LoginValidator handles a login challenge.
type LoginValidator interface {
	ValidateLogin(ctx context.Context, authData AuthData, opts Options, req Request, existing AuthData) (Result, error)
}

// PolicyProvider reports the login policy for a user's stored payload.
type PolicyProvider interface {
	Policy(stored AuthData) Policy
}

// Projector returns the client-visible view of a stored payload.
type Projector interface {
	Project(stored AuthData, req Request) AuthData
}

// UnlinkValidator approves removal of a provider from a user.
type UnlinkValidator interface {
	ValidateUnlink(ctx context.Context, proof AuthData, opts Options, req Request, existing AuthData) error
}

// Funcs adapts closures to Adapter. Nil funcs accept.
type Funcs struct {
	AppID    func(ctx context.Context, appIDs []string, authData AuthData, opts Options) error
	AuthData func(ctx context.Context, authData AuthData, opts Options, existing AuthData) (Result, error)
}

func (f Funcs) ValidateAppID(ctx context.Context, appIDs []string, authData AuthData, opts Options) error {
	if f.AppID == nil {
		return nil
	}
	return f.AppID(ctx, appIDs, authData, opts)
}

func (f Funcs) ValidateAuthData(ctx context.Context, authData AuthData, opts Options, existing AuthData) (Result, error) {
	if f.AuthData == nil {
		return Result{}, nil
	}
	return f.AuthData(ctx, authData, opts, existing)
}

// NoAppID is embedded by adapters whose app identity travels inside the
// credential, making ValidateAppID a no-op.
type NoAppID struct{}

func (NoAppID) ValidateAppID(context.Context, []string, AuthData, Options) error { return nil }
