// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

import (
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// CSLItem is a bibliographic entry in CSL-YAML form, readable by Pandoc
// and most reference managers.
type CSLItem struct {
	ID             string    `yaml:"id"`
	Type           string    `yaml:"type"`
	Title          string    `yaml:"title"`
	Author         []CSLName `yaml:"author,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty"`
	Issued         *CSLDate  `yaml:"issued,omitempty"`
	Abstract       string    `yaml:"abstract,omitempty"`
	DOI            string    `yaml:"DOI,omitempty"`
	PMID           string    `yaml:"PMID,omitempty"`
	PMCID          string    `yaml:"PMCID,omitempty"`
}

type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// FormatCSL writes articles to w as a CSL-YAML list.
func FormatCSL(articles []types.Article, w io.Writer) error {
	items := make([]CSLItem, len(articles))
	for i, a := range articles {
		items[i] = toCSLItem(a)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

func toCSLItem(a types.Article) CSLItem {
	item := CSLItem{
		ID:             "pmid" + a.PMID,
		Type:           "article-journal",
		Title:          a.Title,
		ContainerTitle: a.Journal,
		Abstract:       a.Abstract,
		DOI:            a.DOI,
		PMID:           a.PMID,
		PMCID:          a.PMCID,
	}
	if a.Authors != noAuthors {
		for _, name := range strings.Split(a.Authors, ",") {
			if n := parseAuthorName(name); n != (CSLName{}) {
				item.Author = append(item.Author, n)
			}
		}
	}
	if a.Year > 0 {
		item.Issued = &CSLDate{DateParts: [][]int{{a.Year}}}
	}
	return item
}

// parseAuthorName splits "ForeName LastName" on the last space. Single
// tokens, such as collective names reduced to one word, go to Literal.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{Given: name[:idx], Family: name[idx+1:]}
}
