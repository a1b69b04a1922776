package themes

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"memento/internal/errors"
	"memento/internal/prefs"
)

const (
	defaultMinClusterSize = 2
	maxKeywordSpread      = 20
	cohesionFloor         = 0.1
	smallClusterSize      = 3
	expandCooccurMin      = 2
)

// Theme is one proposed cluster of related URLs.
type Theme struct {
	ID               string             `json:"id"`
	Label            string             `json:"label"`
	Status           string             `json:"status"`
	URLs             []string           `json:"urls"`
	Keywords         []string           `json:"keywords"`
	Categories       []string           `json:"categories"`
	Score            float64            `json:"score"`
	TotalRecurrence  int                `json:"totalRecurrence"`
	DistinctDays     int                `json:"distinctDays"`
	FirstSeen        string             `json:"firstSeen"`
	LastSeen         string             `json:"lastSeen"`
	RelatedInterests []string           `json:"relatedInterests,omitempty"`
	Corrections      []prefs.Correction `json:"corrections,omitempty"`
}

// themeID derives a stable id from the member URLs so feedback survives
// re-detection.
func themeID(urls []string) string {
	sorted := append([]string{}, urls...)
	sort.Strings(sorted)
	h := fnv.New64a()
	for _, u := range sorted {
		h.Write([]byte(u))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("theme-%x", h.Sum64())
}

// specificity rewards keywords that pick out few URLs.
func specificity(urlCount int) float64 {
	return 1 / math.Log2(float64(urlCount)+1)
}

// GetThemeProposals runs greedy keyword clustering over the URL history,
// enriches the clusters, and applies stored feedback (dismissed and
// archived themes are dropped, renames applied).
func (d *Detector) GetThemeProposals() ([]Theme, error) {
	h, err := d.buildHistory()
	if err != nil {
		return nil, err
	}
	themes := d.cluster(h, defaultMinClusterSize)

	interests := d.loadInterests()
	corrections := d.loadCorrections()
	for i := range themes {
		themes[i].RelatedInterests = relatedInterests(themes[i].Keywords, interests)
		themes[i].Corrections = correctionsFor(themes[i].URLs, corrections)
	}

	if d.feedback != nil {
		themes, err = d.feedback.Apply(themes)
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(themes, func(i, j int) bool {
		if themes[i].Score != themes[j].Score {
			return themes[i].Score > themes[j].Score
		}
		return themes[i].ID < themes[j].ID
	})
	return themes, nil
}

// RecordFeedback stores the user's verdict on a theme.
func (d *Detector) RecordFeedback(fb Feedback) error {
	if d.feedback == nil {
		return errors.InvalidArgumentf("theme feedback store not configured")
	}
	return d.feedback.Record(fb)
}

type scoredKeyword struct {
	keyword     string
	specificity float64
	urls        []string
}

func (d *Detector) cluster(h *history, minClusterSize int) []Theme {
	if minClusterSize < 2 {
		minClusterSize = defaultMinClusterSize
	}

	var keywords []scoredKeyword
	for kw, urlSet := range h.byKeyword {
		if len(urlSet) < minClusterSize || len(urlSet) > maxKeywordSpread {
			continue
		}
		keywords = append(keywords, scoredKeyword{kw, specificity(len(urlSet)), sortedKeys(urlSet)})
	}
	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].specificity != keywords[j].specificity {
			return keywords[i].specificity > keywords[j].specificity
		}
		return keywords[i].keyword < keywords[j].keyword
	})

	assigned := map[string]bool{}
	var themes []Theme
	for _, sk := range keywords {
		var members []string
		for _, u := range sk.urls {
			if !assigned[u] {
				members = append(members, u)
			}
		}
		if len(members) < minClusterSize {
			continue
		}
		if cohesion(members, h) < cohesionFloor && len(members) > smallClusterSize {
			continue
		}
		members = d.expand(members, h, assigned)
		for _, u := range members {
			assigned[u] = true
		}
		themes = append(themes, buildTheme(members, h))
	}
	return themes
}

// cohesion is the fraction of member pairs that ever co-occurred.
func cohesion(urls []string, h *history) float64 {
	if len(urls) < 2 {
		return 1
	}
	pairs, hits := 0, 0
	for i := 0; i < len(urls); i++ {
		for j := i + 1; j < len(urls); j++ {
			pairs++
			if h.cooccur[pairKey(urls[i], urls[j])] > 0 {
				hits++
			}
		}
	}
	return float64(hits) / float64(pairs)
}

// expand pulls in unassigned URLs that co-occur at least twice with a member
// and share at least one keyword with the cluster.
func (d *Detector) expand(members []string, h *history, assigned map[string]bool) []string {
	inCluster := map[string]bool{}
	clusterKeywords := map[string]bool{}
	for _, u := range members {
		inCluster[u] = true
		if rec := h.recurrences[u]; rec != nil {
			for kw := range rec.Keywords {
				clusterKeywords[kw] = true
			}
		}
	}
	for u, rec := range h.recurrences {
		if inCluster[u] || assigned[u] {
			continue
		}
		cooc := 0
		for _, m := range members {
			if h.cooccur[pairKey(u, m)] > cooc {
				cooc = h.cooccur[pairKey(u, m)]
			}
		}
		if cooc < expandCooccurMin {
			continue
		}
		shares := false
		for kw := range rec.Keywords {
			if clusterKeywords[kw] {
				shares = true
				break
			}
		}
		if shares {
			members = append(members, u)
			inCluster[u] = true
		}
	}
	sort.Strings(members)
	return members
}

func buildTheme(urls []string, h *history) Theme {
	theme := Theme{
		ID:     themeID(urls),
		Status: StatusActive,
		URLs:   urls,
	}

	keywordFreq := map[string]int{}
	categories := map[string]bool{}
	days := map[string]bool{}
	coocScore := 0
	for i, u := range urls {
		rec := h.recurrences[u]
		if rec == nil {
			continue
		}
		theme.TotalRecurrence += len(rec.Sessions)
		for kw := range rec.Keywords {
			keywordFreq[kw]++
		}
		for c := range rec.Categories {
			categories[c] = true
		}
		for day := range rec.Days {
			days[day] = true
		}
		if theme.FirstSeen == "" || rec.FirstSeen < theme.FirstSeen {
			theme.FirstSeen = rec.FirstSeen
		}
		if rec.LastSeen > theme.LastSeen {
			theme.LastSeen = rec.LastSeen
		}
		for j := i + 1; j < len(urls); j++ {
			coocScore += h.cooccur[pairKey(u, urls[j])]
		}
	}
	theme.Categories = sortedKeys(categories)
	theme.DistinctDays = len(days)
	theme.Keywords, theme.Label = labelCluster(urls, keywordFreq)
	theme.Score = 15*float64(len(urls)) +
		5*float64(theme.TotalRecurrence) +
		8*float64(theme.DistinctDays) +
		10*float64(len(theme.Categories)) +
		3*float64(coocScore)
	return theme
}

// labelCluster picks the 2-3 most frequent keywords above the frequency
// floor max(2, 0.3*|cluster|) and title-cases them; with none it falls back
// to "<top domain> cluster".
func labelCluster(urls []string, keywordFreq map[string]int) ([]string, string) {
	floor := 2
	if f := int(math.Ceil(0.3 * float64(len(urls)))); f > floor {
		floor = f
	}
	type kf struct {
		keyword string
		count   int
	}
	var candidates []kf
	for kw, n := range keywordFreq {
		if n >= floor {
			candidates = append(candidates, kf{kw, n})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].keyword < candidates[j].keyword
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	var keywords []string
	var parts []string
	for _, c := range candidates {
		keywords = append(keywords, c.keyword)
		parts = append(parts, capitalize(c.keyword))
	}
	if len(parts) == 0 {
		domain := topDomain(urls)
		if domain == "" {
			domain = "misc"
		}
		return nil, domain + " cluster"
	}
	return keywords, strings.Join(parts, " / ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// loadCorrections is best-effort: theme enrichment never fails on a broken
// corrections source.
func (d *Detector) loadCorrections() []prefs.Correction {
	analyzer := prefs.NewAnalyzer(d.sessions, nil)
	corrections, err := analyzer.GetCorrections()
	if err != nil {
		d.logger.Warn("Theme enrichment skipping corrections: %v", err)
		return nil
	}
	return corrections
}

func correctionsFor(urls []string, corrections []prefs.Correction) []prefs.Correction {
	member := map[string]bool{}
	for _, u := range urls {
		member[u] = true
	}
	var out []prefs.Correction
	for _, c := range corrections {
		if member[c.URL] {
			out = append(out, c)
		}
	}
	return out
}
