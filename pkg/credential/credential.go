package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Credential holds the Bilibili session cookie bundle. All fields are
// cookie values except AcTimeValue, which is the refresh token localStorage
// entry required by the cookie refresh endpoint.
type Credential struct {
	SESSDATA    string `json:"SESSDATA"`
	BiliJct     string `json:"bili_jct"`
	Buvid3      string `json:"buvid3"`
	DedeUserID  string `json:"DedeUserID"`
	AcTimeValue string `json:"ac_time_value"`
}

var (
	ErrNotFound           = errors.New("credential not found")
	ErrRefreshUnavailable = errors.New("credential refresh unavailable: ac_time_value not set")
)

// FromEnv builds a credential from BILI_* environment variables. Returns
// nil when SESSDATA is absent, which means anonymous access.
func FromEnv() *Credential {
	c := &Credential{
		SESSDATA:    os.Getenv("BILI_SESSDATA"),
		BiliJct:     os.Getenv("BILI_JCT"),
		Buvid3:      os.Getenv("BILI_BUVID3"),
		DedeUserID:  os.Getenv("BILI_DEDE_USER_ID"),
		AcTimeValue: os.Getenv("BILI_AC_TIME_VALUE"),
	}
	if c.SESSDATA == "" {
		return nil
	}
	return c
}

// Load builds a credential from the environment, then overrides with
// values from the JSON file at path when it exists. A nil result means
// anonymous access; a missing file is not an error.
func Load(path string) (*Credential, error) {
	env := FromEnv()

	if path == "" {
		return env, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var file Credential
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}

	merged := Credential{}
	if env != nil {
		merged = *env
	}
	if file.SESSDATA != "" {
		merged.SESSDATA = file.SESSDATA
	}
	if file.BiliJct != "" {
		merged.BiliJct = file.BiliJct
	}
	if file.Buvid3 != "" {
		merged.Buvid3 = file.Buvid3
	}
	if file.DedeUserID != "" {
		merged.DedeUserID = file.DedeUserID
	}
	if file.AcTimeValue != "" {
		merged.AcTimeValue = file.AcTimeValue
	}

	if merged.SESSDATA == "" {
		return nil, nil
	}
	return &merged, nil
}

// CookieHeader renders the bundle as a Cookie header value. Empty fields
// are skipped.
func (c *Credential) CookieHeader() string {
	if c == nil {
		return ""
	}
	var parts []string
	add := func(name, value string) {
		if value != "" {
			parts = append(parts, name+"="+value)
		}
	}
	add("SESSDATA", c.SESSDATA)
	add("bili_jct", c.BiliJct)
	add("buvid3", c.Buvid3)
	add("DedeUserID", c.DedeUserID)
	return strings.Join(parts, "; ")
}

// CanRefresh reports whether the bundle carries the refresh token.
func (c *Credential) CanRefresh() bool {
	return c != nil && c.AcTimeValue != ""
}

// Masked returns a copy safe for logging: each secret shows its first
// eight characters followed by "***".
func (c *Credential) Masked() *Credential {
	if c == nil {
		return nil
	}
	return &Credential{
		SESSDATA:    maskValue(c.SESSDATA),
		BiliJct:     maskValue(c.BiliJct),
		Buvid3:      maskValue(c.Buvid3),
		DedeUserID:  c.DedeUserID,
		AcTimeValue: maskValue(c.AcTimeValue),
	}
}

func maskValue(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:8] + "***"
}
