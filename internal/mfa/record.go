package mfa

import (
	"encoding/json"
	"time"

	"github.com/dropDatabas3/authdata/internal/providers"
)

// Status of a user's second factor.
type Status string

const (
	StatusDisabled Status = "disabled"
	StatusPending  Status = "pending"
	StatusEnabled  Status = "enabled"
)

// PendingCode is an SMS code sent to a mobile awaiting confirmation.
type PendingCode struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}

// Record is the stored mfa payload of one user.
type Record struct {
	Status Status `json:"status,omitempty"`
	// Secret is the base32 TOTP secret, sealed when a secretbox is configured.
	Secret string `json:"secret,omitempty"`
	// Recovery holds argon2id hashes of the unused recovery codes.
	Recovery []string               `json:"recovery,omitempty"`
	Mobile   string                 `json:"mobile,omitempty"`
	Pending  map[string]PendingCode `json:"pending,omitempty"`
	// Token/Expiry hold the SMS login code last sent to Mobile.
	Token  string     `json:"token,omitempty"`
	Expiry *time.Time `json:"expiry,omitempty"`
	// LastStep is the last accepted TOTP step (replay protection).
	LastStep *int64 `json:"lastStep,omitempty"`
}

// Enabled reports whether the factor gates login.
func (r Record) Enabled() bool {
	return r.Status == StatusEnabled && (r.Secret != "" || r.Mobile != "")
}

// ParseRecord decodes a stored payload. Nil yields the zero Record.
func ParseRecord(data providers.AuthData) (Record, error) {
	var r Record
	if len(data) == 0 {
		return r, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return r, err
	}
	err = json.Unmarshal(raw, &r)
	return r, err
}

// AuthData encodes r for storage.
func (r Record) AuthData() providers.AuthData {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	var out providers.AuthData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// purgeExpired drops pending codes past their expiry and reports whether
// any were dropped.
func (r *Record) purgeExpired(now time.Time) bool {
	n := len(r.Pending)
	for mobile, p := range r.Pending {
		if now.After(p.Expiry) {
			delete(r.Pending, mobile)
		}
	}
	if len(r.Pending) == 0 {
		r.Pending = nil
	}
	return len(r.Pending) != n
}

// State is the effective status: a disabled record with codes awaiting
// confirmation is pending.
func (r Record) State() Status {
	if r.Enabled() {
		return StatusEnabled
	}
	if len(r.Pending) > 0 {
		return StatusPending
	}
	return StatusDisabled
}
