// Package branch models which office produced a row. Branch membership is a
// structured identity; the "(In)" owner suffix used by stored rows is handled
// only by ParseOwner and Identity.Owner.
package branch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/misung-crm/misung-crm/internal/rowstore"
)

const incheonSuffix = "(In)"

// ErrInvalidSelector is returned for an unknown branch selector.
var ErrInvalidSelector = errors.New("branch: invalid selector")

// Branch enumerates the offices of the organisation.
type Branch int

const (
	Headquarters Branch = iota
	Incheon
)

func (b Branch) String() string {
	switch b {
	case Headquarters:
		return "headquarters"
	case Incheon:
		return "incheon"
	default:
		return fmt.Sprintf("branch(%d)", int(b))
	}
}

// Label returns the Korean display name.
func (b Branch) Label() string {
	if b == Incheon {
		return "인천"
	}
	return "본점"
}

// Identity is a user acting for one branch.
type Identity struct {
	Name   string
	Branch Branch
}

// ParseOwner decodes a stored owner string such as "Kim(In)".
func ParseOwner(owner string) Identity {
	owner = normalize(owner)
	if name, ok := strings.CutSuffix(owner, incheonSuffix); ok {
		return Identity{Name: strings.TrimSpace(name), Branch: Incheon}
	}
	return Identity{Name: owner, Branch: Headquarters}
}

// Owner encodes the identity the way rows store it.
func (id Identity) Owner() string {
	if id.Branch == Incheon {
		return id.Name + incheonSuffix
	}
	return id.Name
}

func (id Identity) String() string {
	return id.Name + " (" + id.Branch.Label() + ")"
}

// Selector chooses which branches of a multi-branch user to include.
type Selector string

const (
	SelectAll          Selector = "all"
	SelectHeadquarters Selector = "headquarters"
	SelectIncheon      Selector = "incheon"
)

// ParseSelector accepts the query parameter form. An empty value means all.
func ParseSelector(raw string) (Selector, error) {
	switch Selector(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SelectAll:
		return SelectAll, nil
	case SelectHeadquarters:
		return SelectHeadquarters, nil
	case SelectIncheon:
		return SelectIncheon, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSelector, raw)
}

// Resolver maps a user name and selector to the identities to aggregate.
type Resolver struct {
	multi map[string]struct{}
}

// NewResolver builds a resolver for the given multi-branch user names.
func NewResolver(multiBranch ...string) *Resolver {
	r := &Resolver{multi: make(map[string]struct{}, len(multiBranch))}
	for _, name := range multiBranch {
		name = normalize(name)
		if name == "" {
			continue
		}
		r.multi[name] = struct{}{}
	}
	return r
}

// IsMultiBranch reports whether name may act for both branches.
func (r *Resolver) IsMultiBranch(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.multi[normalize(name)]
	return ok
}

// MultiBranchUsers lists the configured names in sorted order.
func (r *Resolver) MultiBranchUsers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.multi))
	for name := range r.multi {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the owner filter for userName. The selector only applies to
// multi-branch users; everyone else is matched on the plain name.
func (r *Resolver) Resolve(userName string, sel Selector) OwnerFilter {
	name := normalize(userName)
	if name == "" {
		return OwnerFilter{}
	}
	hq := Identity{Name: name, Branch: Headquarters}
	if !r.IsMultiBranch(name) {
		return OwnerFilter{identities: []Identity{hq}}
	}
	in := Identity{Name: name, Branch: Incheon}
	switch sel {
	case SelectIncheon:
		return OwnerFilter{identities: []Identity{in}}
	case SelectHeadquarters:
		return OwnerFilter{identities: []Identity{hq}}
	default:
		return OwnerFilter{identities: []Identity{hq, in}}
	}
}

// OwnerFilter is the set of identities a request aggregates over.
type OwnerFilter struct {
	identities []Identity
}

// IsZero reports whether the filter selects nobody.
func (f OwnerFilter) IsZero() bool {
	return len(f.identities) == 0
}

// Identities returns a copy of the selected identities.
func (f OwnerFilter) Identities() []Identity {
	out := make([]Identity, len(f.identities))
	copy(out, f.identities)
	return out
}

// Owners returns the encoded owner strings.
func (f OwnerFilter) Owners() []string {
	out := make([]string, 0, len(f.identities))
	for _, id := range f.identities {
		out = append(out, id.Owner())
	}
	return out
}

// Condition renders the filter against an owner column. A single identity is
// an equality; several become an OR of equalities.
func (f OwnerFilter) Condition(column string) rowstore.Condition {
	if len(f.identities) == 1 {
		return rowstore.Eq(column, f.identities[0].Owner())
	}
	alts := make([]rowstore.Condition, 0, len(f.identities))
	for _, id := range f.identities {
		alts = append(alts, rowstore.Eq(column, id.Owner()))
	}
	return rowstore.Or(alts...)
}

// Matches reports whether a stored owner string belongs to the filter.
func (f OwnerFilter) Matches(owner string) bool {
	got := ParseOwner(owner)
	for _, id := range f.identities {
		if id == got {
			return true
		}
	}
	return false
}

// Key is a stable cache key fragment.
func (f OwnerFilter) Key() string {
	return strings.Join(f.Owners(), "|")
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
