package redact

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is a named set of pattern categories applied during sanitization.
type Profile struct {
	Name       string
	Categories []Category

	set map[Category]bool
}

// Built-in profile names.
const (
	ProfileStrict   = "strict"
	ProfileStandard = "standard"
	ProfileRelaxed  = "relaxed"
)

// NewProfile builds a profile from an explicit category list. Unknown
// categories are rejected.
func NewProfile(name string, categories []Category) (Profile, error) {
	set := make(map[Category]bool, len(categories))
	for _, c := range categories {
		if _, ok := categoryPatterns[c]; !ok {
			return Profile{}, fmt.Errorf("unknown redaction category %q", c)
		}
		set[c] = true
	}
	return Profile{Name: name, Categories: categories, set: set}, nil
}

func (p Profile) has(c Category) bool {
	return p.set[c]
}

func mustProfile(name string, categories []Category) Profile {
	p, err := NewProfile(name, categories)
	if err != nil {
		panic(err)
	}
	return p
}

var builtinProfiles = map[string]Profile{
	ProfileStrict: mustProfile(ProfileStrict, AllCategories()),
	ProfileStandard: mustProfile(ProfileStandard, []Category{
		CategorySecret, CategoryCreditCard, CategorySSN, CategoryEmail,
		CategoryPhone, CategoryAccountID, CategoryAddress,
	}),
	ProfileRelaxed: mustProfile(ProfileRelaxed, []Category{
		CategorySecret, CategorySSN, CategoryCreditCard,
	}),
}

// BuiltinProfile looks up one of the three built-in profiles
// (strict, standard, relaxed).
func BuiltinProfile(name string) (Profile, bool) {
	p, ok := builtinProfiles[name]
	return p, ok
}

// Registry resolves profile names to profiles, overlaying custom profiles on
// the built-ins.
type Registry struct {
	custom map[string]Profile
}

// NewRegistry returns a registry holding only the built-in profiles.
func NewRegistry() *Registry {
	return &Registry{custom: map[string]Profile{}}
}

// Resolve returns the profile for name, preferring custom definitions.
func (r *Registry) Resolve(name string) (Profile, bool) {
	if p, ok := r.custom[name]; ok {
		return p, true
	}
	return BuiltinProfile(name)
}

type profileFile struct {
	Profiles map[string][]string `yaml:"profiles"`
}

// LoadFile reads custom profile definitions from a YAML file of the form:
//
//	profiles:
//	  support: [email, phone]
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profiles file: %w", err)
	}

	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse profiles file: %w", err)
	}

	for name, cats := range pf.Profiles {
		categories := make([]Category, len(cats))
		for i, c := range cats {
			categories[i] = Category(c)
		}
		p, err := NewProfile(name, categories)
		if err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
		r.custom[name] = p
	}
	return nil
}
