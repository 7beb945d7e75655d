package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/authdata/internal/auth"
	"github.com/dropDatabas3/authdata/internal/providers"
)

// ProviderSpec is one entry of the auth section. In YAML it is either a
// module reference:
//
//	auth:
//	  acme: ./plugins/acme.so
//
// or a mapping with enabled, appIds, module, options and any
// provider-specific keys:
//
//	auth:
//	  google:
//	    clientId: 1234.apps.googleusercontent.com
//	  mfa:
//	    options: [TOTP]
//	    digits: 6
//	  corp:
//	    module: oidc
//	    options: {issuer: https://idp.example.com, jwksUri: https://idp.example.com/keys}
//
// A list-valued options key belongs to the provider (mfa uses it) and is
// kept with the provider-specific keys.
type ProviderSpec struct {
	Enabled *bool
	AppIDs  any
	Module  string
	Options providers.Options
	Extra   providers.Options

	// Only settable from code.
	Adapter providers.Adapter
	Factory providers.Factory
}

func (p *ProviderSpec) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var ref string
		if err := n.Decode(&ref); err != nil {
			return err
		}
		*p = ProviderSpec{Module: ref}
		return nil
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: provider must be a module reference or a mapping", n.Line)
	}

	var raw map[string]any
	if err := n.Decode(&raw); err != nil {
		return err
	}
	out := ProviderSpec{Extra: providers.Options{}}
	for k, v := range raw {
		switch k {
		case "enabled":
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("line %d: enabled must be a boolean", n.Line)
			}
			out.Enabled = &b
		case "appIds":
			out.AppIDs = v
		case "module":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("line %d: module must be a string", n.Line)
			}
			out.Module = s
		case "options":
			if m, ok := v.(map[string]any); ok {
				out.Options = providers.Options(m)
				continue
			}
			out.Extra[k] = v
		default:
			out.Extra[k] = v
		}
	}
	*p = out
	return nil
}

// ProviderConfig converts p into the loader's form.
func (p ProviderSpec) ProviderConfig() auth.ProviderConfig {
	return auth.ProviderConfig{
		Enabled: p.Enabled,
		AppIDs:  p.AppIDs,
		Module:  p.Module,
		Options: p.Options,
		Extra:   p.Extra,
		Adapter: p.Adapter,
		Factory: p.Factory,
	}
}
