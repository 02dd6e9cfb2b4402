/*
Copyright 2025 The Fnscale Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package promql

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"k8s.io/klog/v2"
)

// RegexMatchTimeout bounds a single regex label match.
const RegexMatchTimeout = 50 * time.Millisecond

// Selector selects series by metric name and label matchers.
type Selector struct {
	Name     string
	Matchers []*Matcher
	// Range is the lookback in seconds. Zero for instant selectors.
	Range int64
}

// Matcher is a `label="value"` or `label=~"regex"` constraint.
type Matcher struct {
	Label string
	Value string
	re    *regexp2.Regexp
}

// IsRegex reports whether the matcher is a regex matcher.
func (m *Matcher) IsRegex() bool {
	return m.re != nil
}

func newRegexMatcher(label, pattern string) (*Matcher, error) {
	re, err := regexp2.Compile("^(?:"+pattern+")$", regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = RegexMatchTimeout
	return &Matcher{Label: label, Value: pattern, re: re}, nil
}

func (m *Matcher) matches(v string) bool {
	if m.re == nil {
		return v == m.Value
	}
	ok, err := m.re.MatchString(v)
	if err != nil {
		// a timed out match is treated as a non-match
		klog.V(4).InfoS("Label regex match aborted", "label", m.Label, "pattern", m.Value, "error", err)
		return false
	}
	return ok
}

// Matches reports whether a series with the given name and labels is selected.
// A matcher on a label the series does not carry never matches.
func (s *Selector) Matches(name string, labels map[string]string) bool {
	if name != s.Name {
		return false
	}
	for _, m := range s.Matchers {
		v, ok := labels[m.Label]
		if !ok || !m.matches(v) {
			return false
		}
	}
	return true
}

// ParseSeriesKey splits a series key of the form `name{label="value",...}` into its
// metric name and labels. Keys without braces have no labels.
func ParseSeriesKey(key string) (string, map[string]string, bool) {
	open := strings.IndexByte(key, '{')
	if open < 0 {
		return strings.TrimSpace(key), nil, true
	}
	closing := strings.LastIndexByte(key, '}')
	if closing < open {
		return "", nil, false
	}
	name := strings.TrimSpace(key[:open])
	content := strings.TrimSpace(key[open+1 : closing])
	if content == "" {
		return name, nil, true
	}

	labels := make(map[string]string)
	for _, pair := range splitLabelPairs(content) {
		eq := strings.IndexByte(pair, '=')
		if eq <= 0 {
			continue
		}
		k := strings.TrimSpace(pair[:eq])
		v := strings.TrimSpace(pair[eq+1:])
		if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
			v = unescapeLabelValue(v[1 : len(v)-1])
		}
		labels[k] = v
	}
	return name, labels, true
}

// splitLabelPairs splits on commas that are not inside a quoted value.
func splitLabelPairs(s string) []string {
	var parts []string
	start := 0
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if quoted {
				i++
			}
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

func unescapeLabelValue(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			i++
			switch v[i] {
			case 'n':
				b.WriteByte('\n')
			default:
				b.WriteByte(v[i])
			}
			continue
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

// FormatSeriesKey renders a canonical series key with labels sorted by name.
func FormatSeriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, labels[k])
	}
	b.WriteByte('}')
	return b.String()
}
