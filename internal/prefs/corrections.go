package prefs

import (
	"fmt"
	"sort"
	"strings"

	"memento/internal/logging"
	"memento/internal/session"
	"memento/internal/urlx"
)

// Correction is one regroup disposition resolved back to its tab.
type Correction struct {
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url,omitempty"`
	Domain    string `json:"domain,omitempty"`
	Title     string `json:"title,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
	At        string `json:"at"`
	ItemID    string `json:"itemId"`
}

// Analyzer mines regroup dispositions across all sessions into candidate
// preference rules.
type Analyzer struct {
	sessions *session.Store
	store    *Store
	logger   logging.Logger
}

// NewAnalyzer wires the analyzer to the session store and preference store.
func NewAnalyzer(sessions *session.Store, store *Store) *Analyzer {
	return &Analyzer{
		sessions: sessions,
		store:    store,
		logger:   logging.NewComponentLogger("CorrectionAnalyzer"),
	}
}

// GetCorrections walks every session's disposition log and emits a
// correction record per regroup, resolving the tab by id, index, url, or
// title.
func (a *Analyzer) GetCorrections() ([]Correction, error) {
	summaries, err := a.sessions.List()
	if err != nil {
		return nil, err
	}

	var corrections []Correction
	for _, summary := range summaries {
		artifact, err := a.sessions.Read(summary.ID)
		if err != nil {
			a.logger.Warn("Skipping session %s during correction scan: %v", summary.ID, err)
			continue
		}
		for _, d := range artifact.Dispositions {
			if d.Action != session.ActionRegroup {
				continue
			}
			correction := Correction{
				SessionID: summary.ID,
				Timestamp: artifact.Timestamp,
				From:      d.From,
				To:        d.To,
				At:        d.At,
				ItemID:    d.ItemID,
			}
			if ref, ok := artifact.FindItem(d.ItemID); ok {
				correction.URL = ref.URL
				correction.Title = ref.Title
				correction.Domain = urlx.Hostname(ref.URL)
			}
			corrections = append(corrections, correction)
		}
	}
	return corrections, nil
}

// DomainAggregate groups corrections by URL host.
type DomainAggregate struct {
	Domain           string         `json:"domain"`
	TotalCorrections int            `json:"totalCorrections"`
	FromCounts       map[string]int `json:"fromCounts"`
	ToCounts         map[string]int `json:"toCounts"`
	Corrections      []Correction   `json:"corrections"`
}

// AggregateByDomain buckets corrections by domain with from/to category
// distributions. Corrections that could not be resolved to a URL are
// dropped.
func (a *Analyzer) AggregateByDomain() (map[string]*DomainAggregate, error) {
	corrections, err := a.GetCorrections()
	if err != nil {
		return nil, err
	}

	aggregates := make(map[string]*DomainAggregate)
	for _, c := range corrections {
		if c.Domain == "" {
			continue
		}
		agg, ok := aggregates[c.Domain]
		if !ok {
			agg = &DomainAggregate{
				Domain:     c.Domain,
				FromCounts: make(map[string]int),
				ToCounts:   make(map[string]int),
			}
			aggregates[c.Domain] = agg
		}
		agg.TotalCorrections++
		agg.FromCounts[c.From]++
		agg.ToCounts[c.To]++
		agg.Corrections = append(agg.Corrections, c)
	}
	return aggregates, nil
}

// CorrectionRate is the share of a domain's tabs the user has regrouped.
type CorrectionRate struct {
	Domain          string  `json:"domain"`
	TotalTabs       int     `json:"totalTabs"`
	CorrectionCount int     `json:"correctionCount"`
	Rate            float64 `json:"rate"`
}

// GetCorrectionRates computes correctionCount/totalTabs per domain observed
// in at least two tabs across all sessions, sorted descending by rate.
func (a *Analyzer) GetCorrectionRates() ([]CorrectionRate, error) {
	aggregates, err := a.AggregateByDomain()
	if err != nil {
		return nil, err
	}

	tabCounts, err := a.domainTabCounts()
	if err != nil {
		return nil, err
	}

	var rates []CorrectionRate
	for domain, total := range tabCounts {
		if total < 2 {
			continue
		}
		count := 0
		if agg, ok := aggregates[domain]; ok {
			count = agg.TotalCorrections
		}
		rates = append(rates, CorrectionRate{
			Domain:          domain,
			TotalTabs:       total,
			CorrectionCount: count,
			Rate:            float64(count) / float64(total),
		})
	}
	sort.Slice(rates, func(i, j int) bool {
		if rates[i].Rate != rates[j].Rate {
			return rates[i].Rate > rates[j].Rate
		}
		return rates[i].Domain < rates[j].Domain
	})
	return rates, nil
}

func (a *Analyzer) domainTabCounts() (map[string]int, error) {
	summaries, err := a.sessions.List()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, summary := range summaries {
		artifact, err := a.sessions.Read(summary.ID)
		if err != nil {
			continue
		}
		for _, item := range artifact.Items() {
			if host := urlx.Hostname(item.URL); host != "" {
				counts[host]++
			}
		}
	}
	return counts, nil
}

// ExtractorSuggestion flags a domain whose tabs keep getting corrected and
// likely needs content-extraction hints rather than a category rule.
type ExtractorSuggestion struct {
	Domain          string  `json:"domain"`
	CorrectionCount int     `json:"correctionCount"`
	Rate            float64 `json:"rate"`
}

// SuggestExtractors identifies domains above both correction thresholds.
func (a *Analyzer) SuggestExtractors(minCorrections int, minRate float64) ([]ExtractorSuggestion, error) {
	if minCorrections <= 0 {
		minCorrections = 2
	}
	if minRate <= 0 {
		minRate = 0.3
	}
	rates, err := a.GetCorrectionRates()
	if err != nil {
		return nil, err
	}
	var suggestions []ExtractorSuggestion
	for _, rate := range rates {
		if rate.CorrectionCount >= minCorrections && rate.Rate >= minRate {
			suggestions = append(suggestions, ExtractorSuggestion{
				Domain:          rate.Domain,
				CorrectionCount: rate.CorrectionCount,
				Rate:            rate.Rate,
			})
		}
	}
	return suggestions, nil
}

// Suggestion is a candidate preference rule awaiting user approval. Its id
// is derived from the domain so a rejection permanently retires it.
type Suggestion struct {
	ID                string       `json:"id"`
	Domain            string       `json:"domain"`
	Rule              string       `json:"rule"`
	Confidence        float64      `json:"confidence"`
	CorrectionCount   int          `json:"correctionCount"`
	TargetCategory    string       `json:"targetCategory"`
	SourceCorrections []Correction `json:"sourceCorrections"`
}

const minAgreementRatio = 0.6

// SuggestionID derives the stable id for a domain's rule suggestion.
func SuggestionID(domain string) string {
	return "rule-" + domain
}

// GenerateRuleSuggestions builds candidate rules for domains with at least
// minCorrections regroups whose targets agree at 0.6 or better, skipping
// domains already covered by stored or rejected rules. Results are sorted
// by confidence × count descending.
func (a *Analyzer) GenerateRuleSuggestions(minCorrections int) ([]Suggestion, error) {
	if minCorrections <= 0 {
		minCorrections = 2
	}

	aggregates, err := a.AggregateByDomain()
	if err != nil {
		return nil, err
	}
	rules, rejected, err := a.store.GetAllRules()
	if err != nil {
		return nil, err
	}

	coveredDomains := make(map[string]bool)
	for _, rule := range rules {
		coveredDomains[rule.Domain] = true
	}
	rejectedIDs := make(map[string]bool)
	for _, id := range rejected {
		rejectedIDs[id] = true
	}

	var suggestions []Suggestion
	for domain, agg := range aggregates {
		if coveredDomains[domain] || rejectedIDs[SuggestionID(domain)] {
			continue
		}
		if agg.TotalCorrections < minCorrections {
			continue
		}

		target, targetCount := topCategory(agg.ToCounts)
		ratio := float64(targetCount) / float64(agg.TotalCorrections)
		if ratio < minAgreementRatio {
			continue
		}

		suggestions = append(suggestions, Suggestion{
			ID:                SuggestionID(domain),
			Domain:            domain,
			Rule:              buildRuleText(domain, target, agg),
			Confidence:        ratio,
			CorrectionCount:   agg.TotalCorrections,
			TargetCategory:    target,
			SourceCorrections: agg.Corrections,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		si := suggestions[i].Confidence * float64(suggestions[i].CorrectionCount)
		sj := suggestions[j].Confidence * float64(suggestions[j].CorrectionCount)
		if si != sj {
			return si > sj
		}
		return suggestions[i].Domain < suggestions[j].Domain
	})
	return suggestions, nil
}

func topCategory(counts map[string]int) (string, int) {
	best, bestCount := "", 0
	for category, count := range counts {
		if count > bestCount || (count == bestCount && category < best) {
			best, bestCount = category, count
		}
	}
	return best, bestCount
}

// buildRuleText produces the natural-language rule injected into prompts:
// the target category, the negated mis-targets, and path-segment exceptions
// when a segment with two or more hits consistently points elsewhere.
func buildRuleText(domain, target string, agg *DomainAggregate) string {
	var misTargets []string
	for category := range agg.FromCounts {
		if category != target {
			misTargets = append(misTargets, category)
		}
	}
	sort.Strings(misTargets)

	text := fmt.Sprintf("Tabs from %s should be classified as %s", domain, target)
	if len(misTargets) > 0 {
		text += fmt.Sprintf(", not %s", strings.Join(misTargets, " or "))
	}
	text += "."

	for _, exception := range pathExceptions(target, agg.Corrections) {
		text += " " + exception
	}
	return text
}

func pathExceptions(domainTarget string, corrections []Correction) []string {
	type segmentStats struct {
		counts map[string]int
		total  int
	}
	segments := make(map[string]*segmentStats)
	for _, c := range corrections {
		seg := urlx.FirstPathSegment(c.URL)
		if seg == "" {
			continue
		}
		stats, ok := segments[seg]
		if !ok {
			stats = &segmentStats{counts: make(map[string]int)}
			segments[seg] = stats
		}
		stats.counts[c.To]++
		stats.total++
	}

	var names []string
	for seg := range segments {
		names = append(names, seg)
	}
	sort.Strings(names)

	var exceptions []string
	for _, seg := range names {
		stats := segments[seg]
		if stats.total < 2 {
			continue
		}
		segTarget, count := topCategory(stats.counts)
		// "Consistently" means every hit on this segment agrees.
		if segTarget == domainTarget || count != stats.total {
			continue
		}
		exceptions = append(exceptions, fmt.Sprintf("Exception: /%s pages belong in %s.", seg, segTarget))
	}
	return exceptions
}
