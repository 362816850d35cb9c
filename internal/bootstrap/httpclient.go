package bootstrap

import (
	"context"
	"hash/fnv"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"relentless-relay/internal/ol"
)

// Upstream HTTP timeouts so a single hung request doesn't eat the invocation budget.
const (
	upstreamConnectTimeout  = 10 * time.Second
	upstreamResponseTimeout = 25 * time.Second // time to first response header
	upstreamTotalTimeout    = 30 * time.Second // total request (connect + headers + body)
)

// selectProxyFromPool returns one URL from pool by hashing hostname.
// Used so each pod picks a deterministic proxy for multi-egress. Empty pool yields "".
func selectProxyFromPool(pool []string, hostname string) string {
	if len(pool) == 0 {
		return ""
	}
	if hostname == "" {
		hostname = "0"
	}
	h := fnv.New32a()
	h.Write([]byte(hostname))
	return pool[h.Sum32()%uint32(len(pool))]
}

// BuildHTTPClient returns the client used by processors. PROXY_URL wins over
// PROXY_POOL; the pool is indexed by HOSTNAME so replicas spread across proxies.
// The chosen proxy URL ("" for none) is returned for the metrics label.
func BuildHTTPClient(cfg Config) (*http.Client, string) {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: upstreamConnectTimeout}).DialContext,
		ResponseHeaderTimeout: upstreamResponseTimeout,
	}
	proxyURL := cfg.ProxyURL
	if proxyURL == "" && len(cfg.ProxyPool) > 0 {
		hostname := os.Getenv("HOSTNAME")
		proxyURL = selectProxyFromPool(cfg.ProxyPool, hostname)
		if proxyURL != "" {
			log.Printf("proxy from pool: hostname=%s proxy=%s", hostname, proxyURL)
		}
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			log.Printf("invalid PROXY_URL/PROXY_POOL: %v", err)
			proxyURL = ""
		} else {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   upstreamTotalTimeout,
	}, proxyURL
}

// LoadRobots fetches robots.txt for the origin of startURL. Failures are
// logged and yield nil rules (all paths allowed).
func LoadRobots(ctx context.Context, client *http.Client, startURL string) *ol.RobotsRules {
	u, err := url.Parse(startURL)
	if err != nil || u.Host == "" {
		log.Printf("robots.txt skipped, no origin in %q", startURL)
		return nil
	}
	origin := u.Scheme + "://" + u.Host

	robotsCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	body, err := ol.FetchRobots(robotsCtx, client, origin)
	if err != nil {
		log.Printf("robots.txt fetch failed (will allow all paths): origin=%s err=%v", origin, err)
		return nil
	}
	rules := ol.ParseRobots(body, ol.DefaultUserAgent)
	log.Printf("loaded robots.txt origin=%s crawl_delay=%s", origin, rules.CrawlDelay())
	return rules
}
