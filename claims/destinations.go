// Package claims decides which token a claim is embedded in.
package claims

import "strings"

// Claim types with a defined destination.
const (
	Subject       = "sub"
	Name          = "name"
	Email         = "email"
	EmailVerified = "email_verified"
	Role          = "role"
)

// Destination is a token a claim can be embedded in.
type Destination uint8

const (
	AccessToken Destination = 1 << iota
	IdentityToken
)

func (d Destination) String() string {
	switch d {
	case AccessToken:
		return "access_token"
	case IdentityToken:
		return "id_token"
	}
	return "unknown"
}

// DestinationSet is a set of destinations. The zero value is the empty set.
type DestinationSet uint8

// None is the empty set: the claim is dropped.
const None DestinationSet = 0

func setOf(ds ...Destination) DestinationSet {
	var s DestinationSet
	for _, d := range ds {
		s |= DestinationSet(d)
	}
	return s
}

// Has reports whether d is in the set.
func (s DestinationSet) Has(d Destination) bool {
	return s&DestinationSet(d) != 0
}

// Empty reports whether the set has no members.
func (s DestinationSet) Empty() bool {
	return s == None
}

func (s DestinationSet) String() string {
	var names []string
	for _, d := range []Destination{AccessToken, IdentityToken} {
		if s.Has(d) {
			names = append(names, d.String())
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}

var table = map[string]DestinationSet{
	Subject:       setOf(AccessToken, IdentityToken),
	Name:          setOf(AccessToken, IdentityToken),
	Email:         setOf(IdentityToken),
	EmailVerified: setOf(IdentityToken),
	Role:          setOf(AccessToken),
}

// Destinations returns the tokens a claim of the given type is embedded in.
// Unknown claim types map to the empty set so they are never over-shared.
func Destinations(claimType string) DestinationSet {
	return table[claimType]
}

// Claim is a single typed claim value. Multi-valued claims such as role are
// represented as several Claims of the same type.
type Claim struct {
	Type  string
	Value any
}

// Filter keeps the claims whose destination set includes d.
func Filter(cs []Claim, d Destination) []Claim {
	out := make([]Claim, 0, len(cs))
	for _, c := range cs {
		if Destinations(c.Type).Has(d) {
			out = append(out, c)
		}
	}
	return out
}

// ToMap folds claims into a JWT-style claim map. Repeated claim types become arrays;
// role is always an array.
func ToMap(cs []Claim) map[string]any {
	m := make(map[string]any, len(cs))
	for _, c := range cs {
		existing, ok := m[c.Type]
		switch {
		case !ok && c.Type == Role:
			m[c.Type] = []any{c.Value}
		case !ok:
			m[c.Type] = c.Value
		default:
			if arr, isArr := existing.([]any); isArr {
				m[c.Type] = append(arr, c.Value)
			} else {
				m[c.Type] = []any{existing, c.Value}
			}
		}
	}
	return m
}

// scopeRequirements names the scope that releases each identity claim. Claims not
// listed are released whenever their destination allows.
var scopeRequirements = map[string]string{
	Name:          "profile",
	Email:         "email",
	EmailVerified: "email",
}

// ForScopes drops identity claims whose releasing scope was not granted.
func ForScopes(cs []Claim, scopes []string) []Claim {
	granted := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		granted[s] = struct{}{}
	}
	out := make([]Claim, 0, len(cs))
	for _, c := range cs {
		if required, ok := scopeRequirements[c.Type]; ok {
			if _, has := granted[required]; !has {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
