// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ArticleIDs holds the cross-reference identifiers of a PubMed record.
// An empty field means the identifier is absent.
type ArticleIDs struct {
	DOI   string `json:"doi,omitempty" yaml:"doi,omitempty"`
	PMCID string `json:"pmcid,omitempty" yaml:"pmcid,omitempty"`
}

// IsEmpty reports whether neither a DOI nor a PMC id is known.
func (ids ArticleIDs) IsEmpty() bool {
	return ids.DOI == "" && ids.PMCID == ""
}

// Article is one PubMed search hit.
type Article struct {
	// PMID is the PubMed identifier (digits only).
	PMID string `json:"pmid" yaml:"pmid"`

	Title    string `json:"title" yaml:"title"`
	Authors  string `json:"authors" yaml:"authors"`
	Journal  string `json:"journal" yaml:"journal"`
	Year     int    `json:"year" yaml:"year"`
	Abstract string `json:"abstract" yaml:"abstract"`

	DOI   string `json:"doi,omitempty" yaml:"doi,omitempty"`
	PMCID string `json:"pmcid,omitempty" yaml:"pmcid,omitempty"`
}

// IDs returns the article's cross-reference identifiers.
func (a Article) IDs() ArticleIDs {
	return ArticleIDs{DOI: a.DOI, PMCID: a.PMCID}
}

// SearchRecord is an Article persisted by the record store together with the
// query that produced it.
type SearchRecord struct {
	ID int64 `json:"id" yaml:"id"`
	Article
	SearchQuery string    `json:"searchQuery,omitempty" yaml:"search_query,omitempty"`
	CreatedAt   time.Time `json:"createdAt" yaml:"created_at"`
}
