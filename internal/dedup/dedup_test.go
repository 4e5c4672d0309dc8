package dedup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supplierd/internal/ignore"
)

func mention(name string, confidence float64) Mention {
	return Mention{Name: name, Confidence: confidence}
}

func TestMerger_DuplicateNamesMerge(t *testing.T) {
	m := NewMerger(0)

	records, err := m.ClusterAndMerge([]Mention{
		mention("ABC Corp", 0.8),
		mention("ABC Corp", 0.9),
		mention("XYZ Ltd", 0.7),
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "ABC Corp", records[0].Name)
	assert.InDelta(t, 0.85, records[0].Confidence, 1e-9)
	assert.Equal(t, "XYZ Ltd", records[1].Name)
	assert.InDelta(t, 0.7, records[1].Confidence, 1e-9)
}

func TestMerger_EmptyInput(t *testing.T) {
	m := NewMerger(DefaultSimilarityThreshold)

	records, err := m.ClusterAndMerge(nil)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	records, err = m.ClusterAndMerge([]Mention{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMerger_SingletonUnchanged(t *testing.T) {
	m := NewMerger(DefaultSimilarityThreshold)

	records, err := m.ClusterAndMerge([]Mention{mention("ABC Corp", 0.8)})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, Record{Name: "ABC Corp", Confidence: 0.8}, records[0])

	src := "https://example.com/abc"
	ctx := "ABC Corp supplies parts"
	records, err = m.ClusterAndMerge([]Mention{{
		Name:       "ABC Corp",
		Confidence: 0.333,
		SourceURL:  &src,
		Context:    &ctx,
	}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.333, records[0].Confidence, "singleton confidence is not rounded")
	assert.Equal(t, &src, records[0].SourceURL)
	assert.Equal(t, &ctx, records[0].Context)
}

func TestMerger_NameFromHighestConfidence(t *testing.T) {
	m := NewMerger(DefaultSimilarityThreshold)

	records, err := m.ClusterAndMerge([]Mention{
		mention("Acme Inc", 0.6),
		mention("ACME Inc.", 0.9),
		mention("acme", 0.9),
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Ties keep the earlier mention.
	assert.Equal(t, "ACME Inc.", records[0].Name)
	assert.InDelta(t, 0.8, records[0].Confidence, 1e-9)
}

func TestMerger_ConfidenceRounding(t *testing.T) {
	m := NewMerger(DefaultSimilarityThreshold)

	records, err := m.ClusterAndMerge([]Mention{
		mention("Globex", 0.9),
		mention("Globex", 0.8),
		mention("Globex", 0.8),
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.83, records[0].Confidence)
}

func TestMerger_EvidenceMerge(t *testing.T) {
	m := NewMerger(DefaultSimilarityThreshold)
	first := "https://a.example.com"
	second := "https://b.example.com"
	ctxA := "supplied by Initech"
	ctxB := "Initech partnership"
	empty := ""

	t.Run("source is first available in insertion order", func(t *testing.T) {
		records, err := m.ClusterAndMerge([]Mention{
			{Name: "Initech", Confidence: 0.5},
			{Name: "Initech", Confidence: 0.9, SourceURL: &first},
			{Name: "Initech", Confidence: 0.7, SourceURL: &second},
		})
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.NotNil(t, records[0].SourceURL)
		assert.Equal(t, first, *records[0].SourceURL)
	})

	t.Run("contexts joined in insertion order", func(t *testing.T) {
		records, err := m.ClusterAndMerge([]Mention{
			{Name: "Initech", Confidence: 0.5, Context: &ctxA},
			{Name: "Initech", Confidence: 0.9, Context: &empty},
			{Name: "Initech", Confidence: 0.7, Context: &ctxB},
		})
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.NotNil(t, records[0].Context)
		assert.Equal(t, "supplied by Initech; Initech partnership", *records[0].Context)
	})

	t.Run("no evidence stays nil", func(t *testing.T) {
		records, err := m.ClusterAndMerge([]Mention{
			mention("Initech", 0.5),
			mention("Initech", 0.7),
		})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Nil(t, records[0].SourceURL)
		assert.Nil(t, records[0].Context)
	})
}

func TestMerger_GreedyNonTransitive(t *testing.T) {
	// a~b and b~c clear the threshold, a~c does not.
	a := "abcdefghij"
	b := "abcdefghxy"
	c := "abcdefuvxy"

	m := NewMerger(DefaultSimilarityThreshold)
	records, err := m.ClusterAndMerge([]Mention{
		mention(a, 0.9),
		mention(b, 0.5),
		mention(c, 0.6),
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, a, records[0].Name)
	assert.InDelta(t, 0.7, records[0].Confidence, 1e-9)
	assert.Equal(t, c, records[1].Name)
	assert.Equal(t, 0.6, records[1].Confidence)
}

func TestMerger_OrderFollowsSeeds(t *testing.T) {
	m := NewMerger(DefaultSimilarityThreshold)

	records, err := m.ClusterAndMerge([]Mention{
		mention("Beta Foods", 0.4),
		mention("Alpha Metals", 0.9),
		mention("Beta Foods Ltd", 0.8),
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Beta Foods Ltd", records[0].Name)
	assert.Equal(t, "Alpha Metals", records[1].Name)
}

func TestMerger_Threshold(t *testing.T) {
	mentions := []Mention{
		mention("abcd", 0.5),
		mention("abce", 0.5),
	}

	records, err := NewMerger(80).ClusterAndMerge(mentions)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = NewMerger(75).ClusterAndMerge(mentions)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.Equal(t, DefaultSimilarityThreshold, NewMerger(-1).Threshold())
}

func TestMerger_InvalidMention(t *testing.T) {
	m := NewMerger(DefaultSimilarityThreshold)

	tests := []struct {
		name     string
		mentions []Mention
	}{
		{"empty name", []Mention{mention("", 0.5)}},
		{"blank name", []Mention{mention("ok", 0.5), mention("   ", 0.5)}},
		{"confidence above one", []Mention{mention("Acme", 1.5)}},
		{"negative confidence", []Mention{mention("Acme", -0.1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := m.ClusterAndMerge(tt.mentions)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidMention)
			assert.Nil(t, records)
		})
	}
}

func TestMerger_ConfidenceBounds(t *testing.T) {
	m := NewMerger(DefaultSimilarityThreshold)

	records, err := m.ClusterAndMerge([]Mention{
		mention("Umbrella", 0),
		mention("Umbrella", 1),
		mention("Umbrella Corp", 1),
		mention("Wayne Enterprises", 0),
	})
	require.NoError(t, err)
	for _, r := range records {
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 1.0)
	}
}

type staticIgnore map[string]bool

func (s staticIgnore) IsIgnored(name string) bool { return s[name] }

func TestEngine_FiltersIgnoredNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignore.txt")
	require.NoError(t, os.WriteFile(path, []byte("Ignored Supplier\n"), 0o644))
	policy := ignore.NewPolicy(path, zap.NewNop())

	engine := NewEngine(policy, NewMerger(DefaultSimilarityThreshold), zap.NewNop())
	records, err := engine.Process([]Mention{
		mention("Ignored Supplier", 0.9),
		mention("Acme Widgets", 0.8),
		mention("Globex Logistics", 0.7),
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.NotEqual(t, "Ignored Supplier", r.Name)
	}
}

func TestEngine_IgnoredNeverSeeds(t *testing.T) {
	// "Acme Supply" would otherwise seed a cluster and absorb "Acme Supply Co".
	engine := NewEngine(staticIgnore{"Acme Supply": true}, nil, nil)

	records, err := engine.Process([]Mention{
		mention("Acme Supply", 1.0),
		mention("Acme Supply Co", 0.4),
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Acme Supply Co", records[0].Name)
	assert.Equal(t, 0.4, records[0].Confidence)
}

func TestEngine_EmptyAndAllIgnored(t *testing.T) {
	engine := NewEngine(staticIgnore{"Acme": true}, nil, nil)

	records, err := engine.Process(nil)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = engine.Process([]Mention{mention("Acme", 0.9)})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEngine_RejectsInvalidBeforeFiltering(t *testing.T) {
	engine := NewEngine(nil, nil, nil)

	_, err := engine.Process([]Mention{mention("Acme", 0.9), mention("", 0.5)})
	assert.ErrorIs(t, err, ErrInvalidMention)
}
