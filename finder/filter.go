package finder

import (
	"regexp"
	"strings"
)

const (
	emphasisOpen  = "<strong>"
	emphasisClose = "</strong>"
)

// Criteria is the compiled form of the filtering part of a FilterRequest.
type Criteria struct {
	MinimumFriends   *int64
	MaximumFriends   *int64
	MinimumFollowers *int64
	MaximumFollowers *int64
	Ratio            Ratio
	Keywords         []string

	patterns []*regexp.Regexp
}

func NewCriteria(req FilterRequest) *Criteria {
	c := &Criteria{
		MinimumFriends:   req.MinimumFriends,
		MaximumFriends:   req.MaximumFriends,
		MinimumFollowers: req.MinimumFollowers,
		MaximumFollowers: req.MaximumFollowers,
		Ratio:            req.Ratio,
		Keywords:         SplitKeywords(req.Keywords),
	}
	for _, kw := range c.Keywords {
		c.patterns = append(c.patterns, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
	}
	return c
}

// SplitKeywords splits a comma separated keyword list, dropping blank
// entries. A nil result means there is no keyword constraint.
func SplitKeywords(s string) []string {
	var out []string
	for _, kw := range strings.Split(s, ",") {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		out = append(out, kw)
	}
	return out
}

// Filter returns the profiles that satisfy c, in input order. Returned
// profiles carry highlighted descriptions; the input slice is not modified.
func (c *Criteria) Filter(profiles []Profile) []Profile {
	var out []Profile
	for _, p := range profiles {
		if matched, ok := c.Match(p); ok {
			out = append(out, matched)
		}
	}
	return out
}

// Match evaluates a single profile. Clauses short circuit in a fixed order:
// friend bounds, follower bounds, ratio, keywords.
func (c *Criteria) Match(p Profile) (Profile, bool) {
	if c.MinimumFriends != nil && p.FollowsCount < *c.MinimumFriends {
		return p, false
	}
	if c.MaximumFriends != nil && p.FollowsCount > *c.MaximumFriends {
		return p, false
	}
	if c.MinimumFollowers != nil && p.FollowersCount < *c.MinimumFollowers {
		return p, false
	}
	if c.MaximumFollowers != nil && p.FollowersCount > *c.MaximumFollowers {
		return p, false
	}

	switch c.Ratio {
	case RatioFollowersGreaterThanFriends:
		if p.FollowersCount < p.FollowsCount {
			return p, false
		}
	case RatioFriendsGreaterThanFollowers:
		if p.FollowersCount > p.FollowsCount {
			return p, false
		}
	}

	if len(c.patterns) == 0 {
		return p, true
	}

	desc, matched := c.highlight(p.Description)
	if !matched {
		return p, false
	}
	p.Description = desc
	return p, true
}

// highlight wraps every case-insensitive occurrence of each keyword, one
// keyword at a time. Later keywords see the markup inserted by earlier ones.
func (c *Criteria) highlight(desc string) (string, bool) {
	matched := false
	for _, re := range c.patterns {
		if !re.MatchString(desc) {
			continue
		}
		matched = true
		desc = re.ReplaceAllString(desc, emphasisOpen+"${0}"+emphasisClose)
	}
	return desc, matched
}
