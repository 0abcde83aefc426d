package internal

import (
	"bytes"
	"fmt"
	"strings"
)

// CurrencyCode is an ISO 4217 style code: exactly three ASCII uppercase letters.
type CurrencyCode string

// ParseCurrencyCode accepts only an already-canonical code. Used for wire keys.
func ParseCurrencyCode(s string) (CurrencyCode, error) {
	ccy := CurrencyCode(s)
	if !ccy.IsValid() {
		return "", fmt.Errorf("invalid currency code %q", s)
	}
	return ccy, nil
}

// NewCurrencyCode normalizes user input before validating it.
func NewCurrencyCode(s string) (CurrencyCode, error) {
	return ParseCurrencyCode(strings.ToUpper(strings.TrimSpace(s)))
}

func (c CurrencyCode) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for i := 0; i < len(c); i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}

func (c CurrencyCode) String() string { return string(c) }

func (c CurrencyCode) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", c.String())), nil
}

func (c *CurrencyCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	s := strings.Trim(string(b), "\"")
	ccy, err := NewCurrencyCode(s)
	if err != nil {
		return err
	}
	*c = ccy
	return nil
}
