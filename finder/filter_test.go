package finder_test

import (
	"testing"

	"github.com/haileyok/findtofollow/finder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitKeywords(t *testing.T) {
	assert.Nil(t, finder.SplitKeywords(""))
	assert.Nil(t, finder.SplitKeywords(","))
	assert.Nil(t, finder.SplitKeywords(" , ,"))
	assert.Equal(t, []string{"tech", "founder"}, finder.SplitKeywords("tech, founder"))
	assert.Equal(t, []string{"go"}, finder.SplitKeywords(",go,"))
}

func TestCriteria_Bounds(t *testing.T) {
	p := finder.Profile{Did: "did:plc:a", FollowsCount: 200, FollowersCount: 999}

	tests := []struct {
		name string
		req  finder.FilterRequest
		pass bool
	}{
		{"unconstrained", finder.FilterRequest{}, true},
		{"min friends met", finder.FilterRequest{MinimumFriends: finder.Bound(200)}, true},
		{"min friends missed", finder.FilterRequest{MinimumFriends: finder.Bound(201)}, false},
		{"max friends met", finder.FilterRequest{MaximumFriends: finder.Bound(200)}, true},
		{"max friends missed", finder.FilterRequest{MaximumFriends: finder.Bound(199)}, false},
		{"min followers met", finder.FilterRequest{MinimumFollowers: finder.Bound(999)}, true},
		{"min followers missed", finder.FilterRequest{MinimumFollowers: finder.Bound(1000)}, false},
		{"max followers met", finder.FilterRequest{MaximumFollowers: finder.Bound(999)}, true},
		{"max followers missed", finder.FilterRequest{MaximumFollowers: finder.Bound(998)}, false},
		{"zero max friends is a bound", finder.FilterRequest{MaximumFriends: finder.Bound(0)}, false},
		{
			"min followers excludes regardless of other clauses",
			finder.FilterRequest{MinimumFollowers: finder.Bound(1000), MaximumFriends: finder.Bound(500)},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := finder.NewCriteria(tt.req).Match(p)
			assert.Equal(t, tt.pass, ok)
		})
	}
}

func TestCriteria_Ratio(t *testing.T) {
	influencer := finder.Profile{Did: "did:plc:i", FollowsCount: 10, FollowersCount: 1000}
	approachable := finder.Profile{Did: "did:plc:a", FollowsCount: 1000, FollowersCount: 10}
	even := finder.Profile{Did: "did:plc:e", FollowsCount: 50, FollowersCount: 50}
	all := []finder.Profile{influencer, approachable, even}

	got := finder.NewCriteria(finder.FilterRequest{Ratio: finder.RatioNone}).Filter(all)
	assert.Equal(t, []string{"did:plc:i", "did:plc:a", "did:plc:e"}, profileDids(got))

	got = finder.NewCriteria(finder.FilterRequest{Ratio: finder.RatioFollowersGreaterThanFriends}).Filter(all)
	assert.Equal(t, []string{"did:plc:i", "did:plc:e"}, profileDids(got))

	got = finder.NewCriteria(finder.FilterRequest{Ratio: finder.RatioFriendsGreaterThanFollowers}).Filter(all)
	assert.Equal(t, []string{"did:plc:a", "did:plc:e"}, profileDids(got))
}

func TestCriteria_KeywordsCaseInsensitive(t *testing.T) {
	p := finder.Profile{Did: "did:plc:a", Description: "Loves CATS"}

	got, ok := finder.NewCriteria(finder.FilterRequest{Keywords: "cats"}).Match(p)
	require.True(t, ok)
	assert.Equal(t, "Loves <strong>CATS</strong>", got.Description)
}

func TestCriteria_KeywordsHighlightAll(t *testing.T) {
	p := finder.Profile{Did: "did:plc:a", Description: "Tech founder at Acme"}

	got, ok := finder.NewCriteria(finder.FilterRequest{Keywords: "tech,founder"}).Match(p)
	require.True(t, ok)
	assert.Equal(t, "<strong>Tech</strong> <strong>founder</strong> at Acme", got.Description)
}

func TestCriteria_KeywordsRepeatedOccurrences(t *testing.T) {
	p := finder.Profile{Did: "did:plc:a", Description: "go Go GO"}

	got, ok := finder.NewCriteria(finder.FilterRequest{Keywords: "go"}).Match(p)
	require.True(t, ok)
	assert.Equal(t, "<strong>go</strong> <strong>Go</strong> <strong>GO</strong>", got.Description)
}

func TestCriteria_KeywordsAnyMatch(t *testing.T) {
	match := finder.Profile{Did: "did:plc:a", Description: "I write Rust"}
	miss := finder.Profile{Did: "did:plc:b", Description: "I bake bread"}

	got := finder.NewCriteria(finder.FilterRequest{Keywords: "golang, rust"}).Filter([]finder.Profile{match, miss})
	require.Len(t, got, 1)
	assert.Equal(t, "did:plc:a", got[0].Did)
	assert.Equal(t, "I write <strong>Rust</strong>", got[0].Description)
}

func TestCriteria_EmptyKeywordsImposeNothing(t *testing.T) {
	ps := []finder.Profile{
		{Did: "did:plc:a", Description: ""},
		{Did: "did:plc:b", Description: "anything"},
	}

	for _, kw := range []string{"", ",", " "} {
		got := finder.NewCriteria(finder.FilterRequest{Keywords: kw}).Filter(ps)
		assert.Equal(t, []string{"did:plc:a", "did:plc:b"}, profileDids(got), "keywords %q", kw)
		assert.Equal(t, "anything", got[1].Description)
	}
}

func TestCriteria_DoesNotMutateInput(t *testing.T) {
	ps := []finder.Profile{{Did: "did:plc:a", Description: "cats and dogs"}}

	got := finder.NewCriteria(finder.FilterRequest{Keywords: "cats"}).Filter(ps)
	require.Len(t, got, 1)
	assert.Equal(t, "cats and dogs", ps[0].Description)
	assert.Equal(t, "<strong>cats</strong> and dogs", got[0].Description)
}

// Keywords are applied one after another, so a later keyword can match the
// markup inserted for an earlier one. This is accepted behaviour.
func TestCriteria_KeywordOverlapsMarkup(t *testing.T) {
	p := finder.Profile{Did: "did:plc:a", Description: "strong coffee"}

	got, ok := finder.NewCriteria(finder.FilterRequest{Keywords: "coffee,strong"}).Match(p)
	require.True(t, ok)
	assert.Equal(t,
		"<strong>strong</strong> <<strong>strong</strong>>coffee</<strong>strong</strong>>",
		got.Description,
	)
}

func TestCriteria_TighteningNeverGrowsResult(t *testing.T) {
	ids := dids("m", 50)
	var ps []finder.Profile
	for i := int64(0); i < 50; i++ {
		ps = append(ps, finder.Profile{
			Did:            ids[i],
			FollowsCount:   (i * 37) % 400,
			FollowersCount: (i * 53) % 1200,
		})
	}

	prev := len(ps) + 1
	for _, bound := range []int64{0, 100, 300, 600, 900, 1200} {
		n := len(finder.NewCriteria(finder.FilterRequest{MinimumFollowers: finder.Bound(bound)}).Filter(ps))
		assert.LessOrEqual(t, n, prev, "minimum followers %d", bound)
		prev = n
	}

	prev = len(ps) + 1
	for _, bound := range []int64{400, 300, 200, 100, 0} {
		n := len(finder.NewCriteria(finder.FilterRequest{MaximumFriends: finder.Bound(bound)}).Filter(ps))
		assert.LessOrEqual(t, n, prev, "maximum friends %d", bound)
		prev = n
	}
}
