package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field { return zap.String("method", v) }
func Path(v string) zap.Field { return zap.String("path", v) }
func Status(v int) zap.Field { return zap.Int("status", v) }
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

// Duration crea un campo de duración.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// =================================================================================
// DOMINIO
// =================================================================================

// Provider identifies the auth provider (apple, google, mfa, ...).
func Provider(v string) zap.Field { return zap.String("provider", v) }

// UserID crea un campo para el ID del usuario.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// KeyID is the JWKS key id (kid) from a token header.
func KeyID(v string) zap.Field { return zap.String("kid", v) }

// JWKSURI is the key set endpoint being fetched.
func JWKSURI(v string) zap.Field { return zap.String("jwks_uri", v) }

// Algorithm is the JWS algorithm from a token header.
func Algorithm(v string) zap.Field { return zap.String("alg", v) }

// Issuer is the token iss claim.
func Issuer(v string) zap.Field { return zap.String("iss", v) }

// Mode is the validation mode (login, setup, update).
func Mode(v string) zap.Field { return zap.String("mode", v) }

// MFAStatus is the MFA state of a record.
func MFAStatus(v string) zap.Field { return zap.String("mfa_status", v) }

// ErrorCode is the numeric code of an authentication failure.
func ErrorCode(v int) zap.Field { return zap.Int("error_code", v) }

// =================================================================================
// SISTEMA
// =================================================================================

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field { return zap.String("op", v) }

// Layer: handler, service, adapter, store.
func Layer(v string) zap.Field { return zap.String("layer", v) }

func Err(err error) zap.Field { return zap.Error(err) }

// =================================================================================
// GENÉRICOS
// =================================================================================

func Count(v int) zap.Field { return zap.Int("count", v) }
func Version(v int64) zap.Field { return zap.Int64("version", v) }
func String(key, v string) zap.Field { return zap.String(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
