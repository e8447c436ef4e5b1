// Package predicate holds the closed vocabulary of link relationships.
//
// Each relationship has one canonical direction, the only one stored on a
// link, and an inverse label used when an edge is read from its target's
// side. The vocabulary is declared in predicates.cue, embedded at build time
// and checked for involution on load: inverse(inverse(p)) == p for every p,
// and exactly one side of each non-self-inverse pair is canonical.
package predicate

import (
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/tributary/internal/model"
)

//go:embed predicates.cue
var defaultSource []byte

// Vocabulary is an immutable, validated predicate table.
type Vocabulary struct {
	bySlug map[string]model.Predicate
	slugs  []string
}

var loadDefault = sync.OnceValues(func() (*Vocabulary, error) {
	return Load(defaultSource, "predicates.cue")
})

// Default returns the embedded vocabulary.
//
// Panics if the embedded definition is invalid, which the package tests rule out.
func Default() *Vocabulary {
	v, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("predicate: embedded vocabulary: %v", err))
	}
	return v
}

type predicateDef struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Inverse   string `json:"inverse"`
	Canonical bool   `json:"canonical"`
}

// Load compiles a CUE vocabulary with a top-level `predicates` struct keyed
// by slug and validates it.
func Load(src []byte, filename string) (*Vocabulary, error) {
	ctx := cuecontext.New()
	root := ctx.CompileBytes(src, cue.Filename(filename))
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := root.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	predsVal := root.LookupPath(cue.ParsePath("predicates"))
	if !predsVal.Exists() {
		return nil, &LoadError{Message: "missing top-level predicates struct"}
	}

	iter, err := predsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	v := &Vocabulary{bySlug: make(map[string]model.Predicate)}
	for iter.Next() {
		slug := iter.Label()
		var def predicateDef
		if err := iter.Value().Decode(&def); err != nil {
			return nil, formatCUEError(err)
		}
		v.bySlug[slug] = model.Predicate{
			Slug:        slug,
			Name:        def.Name,
			Type:        def.Type,
			InverseSlug: def.Inverse,
			Canonical:   def.Canonical,
		}
		v.slugs = append(v.slugs, slug)
	}
	slices.Sort(v.slugs)

	if err := v.validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vocabulary) validate() error {
	if len(v.slugs) == 0 {
		return &LoadError{Message: "no predicates declared"}
	}
	for _, slug := range v.slugs {
		p := v.bySlug[slug]
		inv, ok := v.bySlug[p.InverseSlug]
		if !ok {
			return &LoadError{Slug: slug, Message: fmt.Sprintf("inverse %q is not declared", p.InverseSlug)}
		}
		if inv.InverseSlug != slug {
			return &LoadError{Slug: slug, Message: fmt.Sprintf("inverse %q points back to %q", inv.Slug, inv.InverseSlug)}
		}
		if p.SelfInverse() {
			if !p.Canonical {
				return &LoadError{Slug: slug, Message: "self-inverse predicate must be canonical"}
			}
			continue
		}
		if p.Canonical == inv.Canonical {
			return &LoadError{Slug: slug, Message: fmt.Sprintf("exactly one of %q and %q must be canonical", slug, inv.Slug)}
		}
	}
	return nil
}

// Get returns the predicate for slug.
func (v *Vocabulary) Get(slug string) (model.Predicate, error) {
	p, ok := v.bySlug[slug]
	if !ok {
		return model.Predicate{}, &Error{Code: ErrCodeUnknownPredicate, Slug: slug}
	}
	return p, nil
}

// Inverse returns the predicate that labels slug read backwards.
// Self-inverse predicates return themselves.
func (v *Vocabulary) Inverse(slug string) (model.Predicate, error) {
	p, err := v.Get(slug)
	if err != nil {
		return model.Predicate{}, err
	}
	return v.bySlug[p.InverseSlug], nil
}

// IsCanonical reports whether slug is a known canonical predicate.
func (v *Vocabulary) IsCanonical(slug string) bool {
	return v.bySlug[slug].Canonical
}

// RequireCanonical returns nil if slug may be stored on a link.
func (v *Vocabulary) RequireCanonical(slug string) error {
	p, err := v.Get(slug)
	if err != nil {
		return err
	}
	if !p.Canonical {
		return &Error{Code: ErrCodeNonCanonicalPredicate, Slug: slug, Canonical: p.InverseSlug}
	}
	return nil
}

// Canonicalize rewrites a relationship into its stored form, swapping the
// endpoints when slug is an inverse label and ordering them for a
// self-inverse one.
func (v *Vocabulary) Canonicalize(sourceID, targetID int64, slug string) (int64, int64, string, error) {
	p, err := v.Get(slug)
	if err != nil {
		return 0, 0, "", err
	}
	if !p.Canonical {
		sourceID, targetID, slug = targetID, sourceID, p.InverseSlug
	}
	sourceID, targetID = v.Orient(sourceID, targetID, slug)
	return sourceID, targetID, slug, nil
}

// Orient returns the stored endpoint order for a link. A self-inverse
// relationship has one row per record pair, lower ID first; every other
// slug keeps the order it was given.
func (v *Vocabulary) Orient(sourceID, targetID int64, slug string) (int64, int64) {
	p, ok := v.bySlug[slug]
	if ok && p.SelfInverse() && sourceID > targetID {
		return targetID, sourceID
	}
	return sourceID, targetID
}

// All returns every predicate ordered by slug.
func (v *Vocabulary) All() []model.Predicate {
	out := make([]model.Predicate, len(v.slugs))
	for i, slug := range v.slugs {
		out[i] = v.bySlug[slug]
	}
	return out
}
