package dedup

import (
	"math"
	"strings"

	"github.com/fyrsmithlabs/supplierd/internal/normalize"
)

// DefaultSimilarityThreshold is the minimum Ratio, on a 0-100 scale, for two
// normalized names to land in the same cluster.
const DefaultSimilarityThreshold = 80.0

// Merger clusters mentions by normalized-name similarity and merges each cluster.
type Merger struct {
	threshold float64
}

// NewMerger creates a merger. A non-positive threshold selects DefaultSimilarityThreshold.
func NewMerger(threshold float64) *Merger {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Merger{threshold: threshold}
}

// Threshold returns the similarity threshold in use.
func (m *Merger) Threshold() float64 {
	return m.threshold
}

// keyedMention pairs a mention with its comparison key. The key never leaves this package.
type keyedMention struct {
	Mention
	key string
}

// ClusterAndMerge groups mentions greedily and merges every group into a Record.
//
// Mentions are visited in input order. Each unconsumed mention seeds a cluster
// and absorbs every later unconsumed mention whose key scores at least the
// threshold against the seed's key. Absorbed members are never compared with
// each other, so a cluster can hold members that are similar only to the seed.
//
// Output order follows the order in which clusters were seeded. Empty input
// yields an empty result; a blank name or out-of-range confidence yields
// ErrInvalidMention before any clustering happens.
func (m *Merger) ClusterAndMerge(mentions []Mention) ([]Record, error) {
	if err := validateAll(mentions); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(mentions))
	for _, cluster := range m.cluster(mentions) {
		records = append(records, mergeCluster(cluster))
	}
	return records, nil
}

// cluster runs the greedy seed-vs-rest grouping.
func (m *Merger) cluster(mentions []Mention) [][]keyedMention {
	keyed := make([]keyedMention, len(mentions))
	for i, mention := range mentions {
		keyed[i] = keyedMention{Mention: mention, key: normalize.Normalize(mention.Name)}
	}

	consumed := make([]bool, len(keyed))
	var clusters [][]keyedMention

	for i := range keyed {
		if consumed[i] {
			continue
		}
		consumed[i] = true
		seed := keyed[i]
		group := []keyedMention{seed}

		// Every index before i is already consumed.
		for j := i + 1; j < len(keyed); j++ {
			if consumed[j] {
				continue
			}
			if float64(normalize.Ratio(seed.key, keyed[j].key)) >= m.threshold {
				group = append(group, keyed[j])
				consumed[j] = true
			}
		}

		clusters = append(clusters, group)
	}

	return clusters
}

// mergeCluster collapses a cluster into one Record.
//
//   - Name: the highest-confidence member, first one wins ties.
//   - Confidence: mean of member confidences, rounded to 2 decimals.
//   - SourceURL: first member source in insertion order.
//   - Context: member contexts joined with "; ", nil when none had one.
//
// A single-member cluster is returned unchanged.
func mergeCluster(group []keyedMention) Record {
	if len(group) == 1 {
		only := group[0]
		return Record{
			Name:       only.Name,
			Confidence: only.Confidence,
			SourceURL:  only.SourceURL,
			Context:    only.Context,
		}
	}

	best := group[0]
	var sum float64
	var source *string
	var contexts []string

	for _, member := range group {
		if member.Confidence > best.Confidence {
			best = member
		}
		sum += member.Confidence
		if source == nil && member.SourceURL != nil && *member.SourceURL != "" {
			source = member.SourceURL
		}
		if member.Context != nil && *member.Context != "" {
			contexts = append(contexts, *member.Context)
		}
	}

	var context *string
	if len(contexts) > 0 {
		joined := strings.Join(contexts, "; ")
		context = &joined
	}

	return Record{
		Name:       best.Name,
		Confidence: roundConfidence(sum / float64(len(group))),
		SourceURL:  source,
		Context:    context,
	}
}

// roundConfidence rounds to 2 decimal places.
func roundConfidence(v float64) float64 {
	return math.Round(v*100) / 100
}
