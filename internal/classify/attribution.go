package classify

import (
	"fmt"
	"strings"

	"memento/internal/session"
	"memento/internal/urlx"
)

// domainSignals is the fixed, ordered list of hostnames with a known
// classification signal, used only for the debug attribution chain.
var domainSignals = []struct{ domain, signal string }{
	{"github.com", "code hosting"},
	{"stackoverflow.com", "programming Q&A"},
	{"arxiv.org", "academic preprints"},
	{"amazon.com", "retail"},
	{"youtube.com", "video"},
	{"reddit.com", "discussion forum"},
	{"wikipedia.org", "reference"},
	{"news.ycombinator.com", "tech news aggregator"},
}

// BuildAttribution computes a deterministic per-tab attribution chain:
// which project keywords matched the title or content, and which domain
// signals fired. Diagnostic only.
func BuildAttribution(tabs []session.Tab, projects []Project) map[string][]string {
	out := make(map[string][]string, len(tabs))
	for i, tab := range tabs {
		item := session.GroupItem{TabIndex: i + 1, Title: tab.Title, URL: tab.URL}
		var chain []string
		title := strings.ToLower(tab.Title)
		content := strings.ToLower(tab.Content)
		for _, p := range projects {
			for _, kw := range p.Keywords {
				needle := strings.ToLower(kw)
				if needle == "" {
					continue
				}
				if strings.Contains(title, needle) {
					chain = append(chain, fmt.Sprintf("project %q keyword %q in title", p.Name, kw))
				} else if strings.Contains(content, needle) {
					chain = append(chain, fmt.Sprintf("project %q keyword %q in content", p.Name, kw))
				}
			}
		}
		host := urlx.Hostname(tab.URL)
		for _, s := range domainSignals {
			if urlx.MatchesDomain(host, s.domain) {
				chain = append(chain, fmt.Sprintf("domain %s: %s", s.domain, s.signal))
			}
		}
		if len(chain) > 0 {
			out[item.ItemID()] = chain
		}
	}
	return out
}
