// Package themes mines cross-session URL clusters: which pages keep showing
// up together, what they are about, and whether the user wants them tracked.
package themes

import (
	"sort"
	"strings"
	"unicode"

	"memento/internal/logging"
	"memento/internal/session"
	"memento/internal/urlx"
)

// stopWords are title tokens that carry no topical signal.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"your": true, "you": true, "how": true, "what": true, "why": true,
	"are": true, "not": true, "all": true, "can": true, "this": true,
	"that": true, "into": true, "about": true, "best": true, "new": true,
	"top": true, "get": true, "out": true, "more": true, "when": true,
	"page": true, "home": true, "site": true, "web": true, "www": true,
	"com": true, "org": true, "untitled": true, "search": true,
	"google": true, "results": true, "youtube": true, "reddit": true,
}

// Recurrence tracks one URL's footprint across the whole history.
type Recurrence struct {
	URL        string
	Title      string
	Sessions   map[string]bool
	Days       map[string]bool
	Categories map[string]bool
	Keywords   map[string]bool
	FirstSeen  string
	LastSeen   string
}

// history is everything clustering needs, built in one pass over the store.
type history struct {
	recurrences map[string]*Recurrence
	cooccur     map[[2]string]int
	byKeyword   map[string]map[string]bool
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Tokenize extracts topical keywords from a title: lowercase alphanumeric
// runs of three or more letters, minus stop words and numbers.
func Tokenize(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	var out []string
	seen := map[string]bool{}
	for _, token := range fields {
		if len(token) < 3 || stopWords[token] || seen[token] {
			continue
		}
		if strings.IndexFunc(token, unicode.IsLetter) < 0 {
			continue
		}
		seen[token] = true
		out = append(out, token)
	}
	return out
}

// Detector builds theme proposals over a session store.
type Detector struct {
	sessions     *session.Store
	feedback     *FeedbackStore
	interestsDir string
	logger       logging.Logger
}

func NewDetector(sessions *session.Store, feedback *FeedbackStore) *Detector {
	return &Detector{
		sessions: sessions,
		feedback: feedback,
		logger:   logging.NewComponentLogger("Themes"),
	}
}

// WithInterestsDir points the detector at a directory of research-interest
// markdown notes used to enrich proposals.
func (d *Detector) WithInterestsDir(dir string) *Detector {
	d.interestsDir = dir
	return d
}

func (d *Detector) buildHistory() (*history, error) {
	summaries, err := d.sessions.List()
	if err != nil {
		return nil, err
	}
	h := &history{
		recurrences: map[string]*Recurrence{},
		cooccur:     map[[2]string]int{},
		byKeyword:   map[string]map[string]bool{},
	}
	for _, summary := range summaries {
		artifact, err := d.sessions.Read(summary.ID)
		if err != nil {
			d.logger.Warn("Skipping session %s in theme history: %v", summary.ID, err)
			continue
		}
		day := summary.Timestamp
		if len(day) >= 10 {
			day = day[:10]
		}
		var urls []string
		for _, ref := range artifact.Items() {
			if ref.URL == "" {
				continue
			}
			rec, ok := h.recurrences[ref.URL]
			if !ok {
				rec = &Recurrence{
					URL:        ref.URL,
					Title:      ref.Title,
					Sessions:   map[string]bool{},
					Days:       map[string]bool{},
					Categories: map[string]bool{},
					Keywords:   map[string]bool{},
					FirstSeen:  artifact.Timestamp,
				}
				h.recurrences[ref.URL] = rec
			}
			if !rec.Sessions[summary.ID] {
				urls = append(urls, ref.URL)
			}
			rec.Sessions[summary.ID] = true
			rec.Days[day] = true
			rec.Categories[ref.Category] = true
			rec.LastSeen = artifact.Timestamp
			if artifact.Timestamp < rec.FirstSeen {
				rec.FirstSeen = artifact.Timestamp
			}
			for _, kw := range Tokenize(ref.Title) {
				rec.Keywords[kw] = true
				urlSet, ok := h.byKeyword[kw]
				if !ok {
					urlSet = map[string]bool{}
					h.byKeyword[kw] = urlSet
				}
				urlSet[ref.URL] = true
			}
		}
		sort.Strings(urls)
		for i := 0; i < len(urls); i++ {
			for j := i + 1; j < len(urls); j++ {
				h.cooccur[pairKey(urls[i], urls[j])]++
			}
		}
	}
	return h, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func topDomain(urls []string) string {
	counts := map[string]int{}
	for _, u := range urls {
		if host := urlx.Hostname(u); host != "" {
			counts[host]++
		}
	}
	best := ""
	for host, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && host < best) {
			best = host
		}
	}
	return best
}
