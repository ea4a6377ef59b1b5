// Package screening implements approximate identity matching against
// sanctions and PEP reference data, with source failover and a fail-closed
// manual-review fallback.
package screening

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/config"
	"github.com/waqiti/amlguard/internal/model"
)

// exactMatchScore is the base score for an exact normalized match. Headroom
// above it is reserved for category and status boosts.
const exactMatchScore = 90.0

// categoryBoosts are additive score adjustments by screening category.
var categoryBoosts = map[model.CandidateCategory]float64{
	model.CategoryHeadOfState: 15,
	model.CategorySanctioned:  12,
	model.CategoryPEP:         8,
	model.CategoryRelative:    3,
}

// positionBoosts reward importance keywords in the candidate's position.
var positionBoosts = []struct {
	keyword string
	boost   float64
}{
	{"president", 10},
	{"head of state", 10},
	{"prime minister", 9},
	{"minister", 6},
	{"general", 5},
	{"director", 4},
	{"deputy", 3},
}

const activeBoost = 10.0

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize lowercases the name, strips non-alphanumeric characters and
// collapses whitespace.
func Normalize(name string) string {
	name = strings.ToLower(name)
	name = nonAlphanumeric.ReplaceAllString(name, "")
	name = whitespaceRun.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// Matcher screens names against reference data sources and produces ranked,
// deduplicated match results.
type Matcher struct {
	sources []ReferenceSource
	history *History
	cfg     config.ScreeningConfig
	logger  *zap.SugaredLogger
}

// NewMatcher creates a fuzzy identity matcher over an ordered failover chain
// of reference sources.
func NewMatcher(sources []ReferenceSource, cfg config.ScreeningConfig, logger *zap.SugaredLogger) *Matcher {
	return &Matcher{
		sources: sources,
		history: NewHistory(cfg.HistoryLimit),
		cfg:     cfg,
		logger:  logger,
	}
}

// Screen matches the name against the reference data and returns accepted
// results sorted descending by score. A total source failure yields a single
// manual-review placeholder: screening failure is never a clean result.
func (m *Matcher) Screen(ctx context.Context, actorID, name string) ([]model.MatchResult, error) {
	candidates, source, err := m.lookup(ctx, name)
	if err != nil {
		m.logger.Errorw("All screening sources failed, emitting manual-review placeholder",
			"actor_id", actorID,
			"search_term", name,
			"error", err,
		)
		placeholder := ManualReviewPlaceholder(name, m.cfg.AcceptThreshold)
		m.history.Record(actorID, name, []model.MatchResult{placeholder})
		return []model.MatchResult{placeholder}, nil
	}

	results := m.match(name, candidates)

	m.logger.Debugw("Screening completed",
		"actor_id", actorID,
		"search_term", name,
		"source", source,
		"candidates", len(candidates),
		"matches", len(results),
	)

	m.history.Record(actorID, name, results)
	return results, nil
}

// History exposes the matcher's per-actor screening history.
func (m *Matcher) History() *History { return m.history }

// ManualReviewPlaceholder builds the result emitted when screening cannot
// run at all. It scores at the acceptance threshold so the event is never
// treated as clean.
func ManualReviewPlaceholder(name string, score float64) model.MatchResult {
	return model.MatchResult{
		MatchedName:  name,
		Score:        score,
		SearchTerm:   name,
		ManualReview: true,
	}
}

// lookup walks the failover chain until one source answers.
func (m *Matcher) lookup(ctx context.Context, name string) ([]model.ScreeningCandidate, string, error) {
	var lastErr error
	for _, source := range m.sources {
		lookupCtx, cancel := context.WithTimeout(ctx, m.cfg.ProviderTimeout)
		candidates, err := source.LookupCandidates(lookupCtx, name)
		cancel()
		if err != nil {
			lastErr = &model.ScreeningProviderError{Source: source.Name(), Err: err}
			m.logger.Warnw("Screening source failed, trying next",
				"source", source.Name(),
				"error", err,
			)
			continue
		}
		return candidates, source.Name(), nil
	}
	if lastErr == nil {
		lastErr = &model.ScreeningProviderError{Source: "none", Err: context.DeadlineExceeded}
	}
	return nil, "", lastErr
}

// match scores every candidate name and alias, applies boosts, filters by
// the acceptance threshold, deduplicates by candidate keeping the highest
// score, and sorts descending.
func (m *Matcher) match(searchTerm string, candidates []model.ScreeningCandidate) []model.MatchResult {
	best := make(map[string]model.MatchResult)

	for _, candidate := range candidates {
		names := append([]string{candidate.Name}, candidate.Aliases...)
		for _, candidateName := range names {
			base := SimilarityScore(searchTerm, candidateName)
			if base <= 0 {
				continue
			}

			score := base + m.boosts(&candidate)
			if score > 100 {
				score = 100
			}
			if score < m.cfg.AcceptThreshold {
				continue
			}

			existing, seen := best[candidate.ID]
			if !seen || score > existing.Score {
				best[candidate.ID] = model.MatchResult{
					CandidateID: candidate.ID,
					MatchedName: candidateName,
					Score:       score,
					Category:    candidate.Category,
					ListSource:  candidate.ListSource,
					SearchTerm:  searchTerm,
				}
			}
		}
	}

	results := make([]model.MatchResult, 0, len(best))
	for _, result := range best {
		results = append(results, result)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CandidateID < results[j].CandidateID
	})
	return results
}

// boosts sums the additive category, active-status and position boosts.
func (m *Matcher) boosts(candidate *model.ScreeningCandidate) float64 {
	boost := categoryBoosts[candidate.Category]
	if candidate.Active {
		boost += activeBoost
	}

	position := strings.ToLower(candidate.Position)
	for _, pb := range positionBoosts {
		if strings.Contains(position, pb.keyword) {
			boost += pb.boost
			break
		}
	}
	return boost
}

// SimilarityScore computes the edit-distance similarity between two names on
// a 0-90 scale: 90 for an exact normalized match, otherwise
// max(0, 90 - distance*90/maxLen).
func SimilarityScore(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return exactMatchScore
	}

	distance := levenshtein.ComputeDistance(na, nb)
	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}

	score := exactMatchScore - float64(distance)*exactMatchScore/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}
