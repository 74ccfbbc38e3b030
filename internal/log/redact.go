// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import "strings"

// Redacted replaces every secret occurrence in redacted output.
const Redacted = "{REDACTED}"

// Redactor strips known secrets (stream keys, tokens) from text before it
// reaches any log sink. The zero value redacts nothing.
type Redactor struct {
	r *strings.Replacer
}

// NewRedactor builds a Redactor for the given secrets. Empty secrets are ignored.
func NewRedactor(secrets ...string) Redactor {
	pairs := make([]string, 0, len(secrets)*2)
	for _, s := range secrets {
		if s == "" {
			continue
		}
		pairs = append(pairs, s, Redacted)
	}
	if len(pairs) == 0 {
		return Redactor{}
	}
	return Redactor{r: strings.NewReplacer(pairs...)}
}

// String redacts s.
func (r Redactor) String(s string) string {
	if r.r == nil {
		return s
	}
	return r.r.Replace(s)
}

// Strings redacts every element of ss into a new slice.
func (r Redactor) Strings(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = r.String(s)
	}
	return out
}
