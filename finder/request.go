package finder

import (
	"fmt"
	"strconv"
	"strings"
)

type Ratio int

const (
	RatioNone Ratio = iota
	RatioFollowersGreaterThanFriends
	RatioFriendsGreaterThanFollowers
)

func (r Ratio) String() string {
	switch r {
	case RatioFollowersGreaterThanFriends:
		return "followers_greater_than_friends"
	case RatioFriendsGreaterThanFollowers:
		return "friends_greater_than_followers"
	default:
		return "none"
	}
}

// ParseRatio accepts the lowercase names returned by Ratio.String as well as
// the upper case form used by older clients. An empty string is RatioNone.
func ParseRatio(s string) (Ratio, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return RatioNone, nil
	case "followers_greater_than_friends":
		return RatioFollowersGreaterThanFriends, nil
	case "friends_greater_than_followers":
		return RatioFriendsGreaterThanFollowers, nil
	}
	return RatioNone, fmt.Errorf("unknown ratio %q", s)
}

// FilterRequest is built once per run and never modified afterwards.
type FilterRequest struct {
	SourceActor      string
	Account          string
	FollowerLimit    int
	MinimumFriends   *int64
	MaximumFriends   *int64
	MinimumFollowers *int64
	MaximumFollowers *int64
	Ratio            Ratio
	Keywords         string
}

func (r FilterRequest) Validate() error {
	if r.SourceActor == "" {
		return &ConfigError{Field: "sourceActor", Reason: "must not be empty"}
	}
	if r.Account == "" {
		return &ConfigError{Field: "account", Reason: "must not be empty"}
	}
	if r.FollowerLimit <= 0 {
		return &ConfigError{Field: "followerLimit", Reason: "must be a positive integer"}
	}

	bounds := []struct {
		name string
		v    *int64
	}{
		{"minimumFriends", r.MinimumFriends},
		{"maximumFriends", r.MaximumFriends},
		{"minimumFollowers", r.MinimumFollowers},
		{"maximumFollowers", r.MaximumFollowers},
	}
	for _, b := range bounds {
		if b.v != nil && *b.v < 0 {
			return &ConfigError{Field: b.name, Reason: "must not be negative"}
		}
	}

	switch r.Ratio {
	case RatioNone, RatioFollowersGreaterThanFriends, RatioFriendsGreaterThanFollowers:
	default:
		return &ConfigError{Field: "ratio", Reason: fmt.Sprintf("unknown value %d", r.Ratio)}
	}

	return nil
}

// RawFilterRequest carries the untrusted string form of a FilterRequest as it
// arrives from a query string or form post.
type RawFilterRequest struct {
	SourceActor      string `query:"source" form:"source"`
	Account          string `query:"account" form:"account"`
	FollowerLimit    string `query:"limit" form:"limit"`
	MinimumFriends   string `query:"minFriends" form:"minFriends"`
	MaximumFriends   string `query:"maxFriends" form:"maxFriends"`
	MinimumFollowers string `query:"minFollowers" form:"minFollowers"`
	MaximumFollowers string `query:"maxFollowers" form:"maxFollowers"`
	Ratio            string `query:"ratio" form:"ratio"`
	Keywords         string `query:"keywords" form:"keywords"`
}

func ParseFilterRequest(raw RawFilterRequest) (FilterRequest, error) {
	req := FilterRequest{
		SourceActor: strings.TrimPrefix(strings.TrimSpace(raw.SourceActor), "@"),
		Account:     strings.TrimPrefix(strings.TrimSpace(raw.Account), "@"),
		Keywords:    raw.Keywords,
	}

	limit, err := strconv.Atoi(strings.TrimSpace(raw.FollowerLimit))
	if err != nil {
		return FilterRequest{}, &ConfigError{Field: "followerLimit", Reason: "must be an integer"}
	}
	req.FollowerLimit = limit

	fields := []struct {
		name string
		in   string
		out  **int64
	}{
		{"minimumFriends", raw.MinimumFriends, &req.MinimumFriends},
		{"maximumFriends", raw.MaximumFriends, &req.MaximumFriends},
		{"minimumFollowers", raw.MinimumFollowers, &req.MinimumFollowers},
		{"maximumFollowers", raw.MaximumFollowers, &req.MaximumFollowers},
	}
	for _, f := range fields {
		v, err := parseBound(f.in)
		if err != nil {
			return FilterRequest{}, &ConfigError{Field: f.name, Reason: "must be an integer"}
		}
		*f.out = v
	}

	ratio, err := ParseRatio(raw.Ratio)
	if err != nil {
		return FilterRequest{}, &ConfigError{Field: "ratio", Reason: err.Error()}
	}
	req.Ratio = ratio

	if err := req.Validate(); err != nil {
		return FilterRequest{}, err
	}

	return req, nil
}

func parseBound(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Bound is a convenience for building requests in code.
func Bound(v int64) *int64 {
	return &v
}
