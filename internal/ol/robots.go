package ol

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultUserAgent is sent with every upstream request so sites can identify
// the relay and apply robots.txt rules or rate limits.
const DefaultUserAgent = "RelentlessRelay/1.0 (+https://github.com/relentless-relay)"

// maxRobotsBytes caps how much of robots.txt is read.
const maxRobotsBytes = 512 << 10

type robotsRule struct {
	prefix string
	allow  bool
}

// RobotsRules are the rules of the robots.txt group that applies to one agent.
// A path is decided by the longest matching prefix; on a tie Allow wins.
type RobotsRules struct {
	rules      []robotsRule
	crawlDelay time.Duration
}

// Allowed reports whether path (the path component of a URL) may be fetched.
// Nil rules allow everything.
func (r *RobotsRules) Allowed(path string) bool {
	if r == nil {
		return true
	}
	path = normalizePath(path)
	allowed, longest := true, -1
	for _, rule := range r.rules {
		if !strings.HasPrefix(path, rule.prefix) {
			continue
		}
		n := len(rule.prefix)
		if n > longest || (n == longest && rule.allow) {
			allowed, longest = rule.allow, n
		}
	}
	return allowed
}

// CrawlDelay is the Crawl-delay of the matched group, 0 when unset.
func (r *RobotsRules) CrawlDelay() time.Duration {
	if r == nil {
		return 0
	}
	return r.crawlDelay
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		return "/" + p
	}
	return p
}

// FetchRobots fetches /robots.txt for the origin of baseURL. A non-200 answer
// comes back as *StatusError.
func FetchRobots(ctx context.Context, client *http.Client, baseURL string) ([]byte, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = "/robots.txt"
	u.RawQuery = ""
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, URL: u.String()}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
}

// ParseRobots returns the rules of the group naming userAgent's product token,
// falling back to the "*" group. Consecutive User-agent lines share one group.
func ParseRobots(body []byte, userAgent string) *RobotsRules {
	token := agentToken(userAgent)

	var (
		specific, wildcard *RobotsRules
		current            *RobotsRules
		forUs, forAll      bool
		inAgents           bool
	)
	flush := func() {
		if current == nil {
			return
		}
		if forUs && specific == nil {
			specific = current
		} else if forAll && wildcard == nil {
			wildcard = current
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if key == "user-agent" {
			if !inAgents {
				flush()
				current, forUs, forAll = &RobotsRules{}, false, false
				inAgents = true
			}
			if value == "*" {
				forAll = true
			} else if token != "" && strings.EqualFold(agentToken(value), token) {
				forUs = true
			}
			continue
		}
		inAgents = false
		if current == nil {
			continue
		}
		switch key {
		case "disallow":
			if value != "" {
				current.rules = append(current.rules, robotsRule{prefix: normalizePath(value)})
			}
		case "allow":
			if value != "" {
				current.rules = append(current.rules, robotsRule{prefix: normalizePath(value), allow: true})
			}
		case "crawl-delay":
			if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
				current.crawlDelay = time.Duration(secs * float64(time.Second))
			}
		}
	}
	flush()

	switch {
	case specific != nil:
		return specific
	case wildcard != nil:
		return wildcard
	default:
		return &RobotsRules{}
	}
}

// agentToken is the product token of a User-Agent, e.g. "RelentlessRelay".
func agentToken(userAgent string) string {
	token, _, _ := strings.Cut(strings.TrimSpace(userAgent), "/")
	if i := strings.IndexAny(token, " \t("); i >= 0 {
		token = token[:i]
	}
	return token
}

// PathFromURL returns the path component of rawURL, or "" if parsing fails.
func PathFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return normalizePath(u.Path)
}
