package models

import (
	"net/url"
	"strconv"
	"strings"
)

// Page size bounds.
const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// PageRequest selects one page of an admin listing.
type PageRequest struct {
	Page    int
	PerPage int
	Search  string
}

// Normalize clamps the request to valid values.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	p.Search = strings.TrimSpace(p.Search)
	return p
}

// Values encodes the request as page, per_page and search query parameters.
// search is omitted when empty.
func (p PageRequest) Values() url.Values {
	p = p.Normalize()
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("per_page", strconv.Itoa(p.PerPage))
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	return v
}

// PageRequestFromQuery reads page, per_page and search from q.
// Malformed numbers fall back to defaults.
func PageRequestFromQuery(q url.Values) PageRequest {
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return PageRequest{Page: page, PerPage: perPage, Search: q.Get("search")}.Normalize()
}

// PageMeta describes where a page sits in the full listing.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// HasNext reports whether a later page exists.
func (m PageMeta) HasNext() bool { return m.CurrentPage < m.LastPage }

// HasPrev reports whether an earlier page exists.
func (m PageMeta) HasPrev() bool { return m.CurrentPage > 1 }

// withDefaults fills zero fields the way the dashboard did for a missing meta.
func (m PageMeta) withDefaults() PageMeta {
	if m.CurrentPage < 1 {
		m.CurrentPage = 1
	}
	if m.LastPage < m.CurrentPage {
		m.LastPage = m.CurrentPage
	}
	if m.PerPage <= 0 {
		m.PerPage = DefaultPerPage
	}
	return m
}

// Page is one page of a listing.
type Page[T any] struct {
	Items []T      `json:"data"`
	Meta  PageMeta `json:"meta"`
}

// NewPage builds a page, defaulting meta fields the server left out.
func NewPage[T any](items []T, meta PageMeta) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Meta: meta.withDefaults()}
}
