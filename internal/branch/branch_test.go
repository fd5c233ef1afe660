package branch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misung-crm/misung-crm/internal/rowstore"
)

func TestParseOwnerRoundTrip(t *testing.T) {
	cases := map[string]Identity{
		"Kim":     {Name: "Kim", Branch: Headquarters},
		"Kim(In)": {Name: "Kim", Branch: Incheon},
		" Lee ":   {Name: "Lee", Branch: Headquarters},
	}
	for owner, want := range cases {
		got := ParseOwner(owner)
		assert.Equal(t, want, got, owner)
	}
	assert.Equal(t, "Kim(In)", Identity{Name: "Kim", Branch: Incheon}.Owner())
	assert.Equal(t, "Kim", Identity{Name: "Kim"}.Owner())
}

func TestParseSelector(t *testing.T) {
	for raw, want := range map[string]Selector{"": SelectAll, "ALL": SelectAll, "incheon": SelectIncheon, " headquarters ": SelectHeadquarters} {
		got, err := ParseSelector(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSelector("busan")
	assert.ErrorIs(t, err, ErrInvalidSelector)
}

func TestResolveMultiBranchSelectors(t *testing.T) {
	r := NewResolver("Kim")

	all := r.Resolve("Kim", SelectAll)
	assert.Equal(t, []string{"Kim", "Kim(In)"}, all.Owners())
	assert.Equal(t, rowstore.Or(rowstore.Eq("created_by", "Kim"), rowstore.Eq("created_by", "Kim(In)")), all.Condition("created_by"))

	hq := r.Resolve("Kim", SelectHeadquarters)
	assert.Equal(t, rowstore.Eq("created_by", "Kim"), hq.Condition("created_by"))
	assert.False(t, hq.Matches("Kim(In)"))

	in := r.Resolve("Kim", SelectIncheon)
	assert.Equal(t, rowstore.Eq("created_by", "Kim(In)"), in.Condition("created_by"))
	assert.False(t, in.Matches("Kim"))
}

func TestResolveSingleBranchIgnoresSelector(t *testing.T) {
	r := NewResolver("Kim")
	for _, sel := range []Selector{SelectAll, SelectHeadquarters, SelectIncheon} {
		f := r.Resolve("Park", sel)
		assert.Equal(t, []string{"Park"}, f.Owners(), sel)
	}
	assert.True(t, r.Resolve("", SelectAll).IsZero())
}

func TestResolveNormalisesHangul(t *testing.T) {
	// "송기정" written with decomposed jamo must still resolve as multi-branch.
	decomposed := "송기정"
	r := NewResolver("송기정")
	assert.True(t, r.IsMultiBranch(decomposed))
	assert.Equal(t, []string{"송기정", "송기정(In)"}, r.Resolve(decomposed, SelectAll).Owners())
}

func TestOwnerFilterAgainstRowStore(t *testing.T) {
	store := rowstore.NewMemory()
	store.Insert("daily_plans",
		rowstore.Row{"created_by": "Kim"},
		rowstore.Row{"created_by": "Kim(In)"},
		rowstore.Row{"created_by": "Park"},
	)
	r := NewResolver("Kim")

	count := func(f OwnerFilter) []string {
		rows, err := store.Query(context.Background(), rowstore.Query{
			Table: "daily_plans",
			Where: []rowstore.Condition{f.Condition("created_by")},
		})
		require.NoError(t, err)
		var owners []string
		for _, row := range rows {
			owners = append(owners, row["created_by"].(string))
			assert.True(t, f.Matches(row["created_by"].(string)))
		}
		return owners
	}

	assert.Equal(t, []string{"Kim", "Kim(In)"}, count(r.Resolve("Kim", SelectAll)))
	assert.Equal(t, []string{"Kim"}, count(r.Resolve("Kim", SelectHeadquarters)))
	assert.Equal(t, []string{"Kim(In)"}, count(r.Resolve("Kim", SelectIncheon)))
	assert.Equal(t, []string{"Park"}, count(r.Resolve("Park", SelectIncheon)))
}

func TestMultiBranchUsersSorted(t *testing.T) {
	r := NewResolver("김태현", " ", "송기정")
	assert.Equal(t, []string{"김태현", "송기정"}, r.MultiBranchUsers())
}
