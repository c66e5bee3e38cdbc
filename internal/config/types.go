package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration parses "5m"-style strings from YAML and env vars.
type Duration time.Duration

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Secret holds a credential (API key, forge token, callback secret).
// Every marshal and print path emits a redaction marker; only Value
// hands back the real string.
type Secret string

// Value returns the actual secret. Callers pass it straight to the
// client library or subprocess env, never into a log field.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a value is configured.
func (s Secret) IsSet() bool {
	return s != ""
}

func (s Secret) String() string {
	return s.redacted()
}

func (s Secret) GoString() string {
	return "config.Secret(" + s.redacted() + ")"
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.redacted())
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.redacted()), nil
}

func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}

func (s Secret) redacted() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}
