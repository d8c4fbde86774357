// Package featureflags evaluates the FEATURE_FLAGS setting.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// Flags consulted by the discovery service and server.
const (
	// RelatedPostsIndex routes related-post lookups through Elasticsearch.
	RelatedPostsIndex = "related_posts_index"
	// RealtimeFeed exposes the WebSocket post-event feed.
	RealtimeFeed = "realtime_feed"
)

// Checker reports whether a flag is on for a user. userID 0 is anonymous.
type Checker interface {
	Enabled(name string, userID uint) bool
}

// rule is a parsed flag value: fully on, fully off, or a per-user rollout.
type rule struct {
	percent int
}

// Manager evaluates a FEATURE_FLAGS list such as
// "related_posts_index=on,realtime_feed=25%". Values are on/true/1,
// off/false/0, or N% for a deterministic per-user rollout that excludes
// anonymous callers. Unknown flags and unparsable values are off.
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw. Malformed pairs are skipped.
func NewManager(raw string) *Manager {
	m := &Manager{rules: make(map[string]rule)}
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = normalize(key)
		if !ok || key == "" {
			continue
		}
		if r, ok := parseRule(normalize(value)); ok {
			m.rules[key] = r
		}
	}
	return m
}

func parseRule(value string) (rule, bool) {
	switch value {
	case "on", "true", "1":
		return rule{percent: 100}, true
	case "off", "false", "0":
		return rule{}, true
	}
	raw, ok := strings.CutSuffix(value, "%")
	if !ok {
		return rule{}, false
	}
	pct, err := strconv.Atoi(raw)
	if err != nil {
		return rule{}, false
	}
	return rule{percent: min(max(pct, 0), 100)}, true
}

func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	name = normalize(name)
	r := m.rules[name]
	switch {
	case r.percent >= 100:
		return true
	case r.percent <= 0 || userID == 0:
		return false
	}
	return bucket(name, userID) < r.percent
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// bucket places a user in [0,100) for name. The same pair always lands in
// the same bucket.
func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s:%d", name, userID)
	return int(h.Sum32() % 100)
}
