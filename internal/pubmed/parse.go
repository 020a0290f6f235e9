// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

import (
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

const (
	noTitle   = "No title available"
	noAuthors = "No authors available"
	noJournal = "No journal information"

	maxListedAuthors = 3
)

// efetch XML structures. Title and abstract keep their inner markup so
// inline tags such as <i> or <sup> can be stripped rather than lost.
type articleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation medlineCitation `xml:"MedlineCitation"`
}

type medlineCitation struct {
	PMID    string      `xml:"PMID"`
	Article articleBody `xml:"Article"`
}

type articleBody struct {
	Journal  journal     `xml:"Journal"`
	Title    innerXML    `xml:"ArticleTitle"`
	Abstract []innerXML  `xml:"Abstract>AbstractText"`
	Authors  []xmlAuthor `xml:"AuthorList>Author"`
}

type innerXML struct {
	Inner string `xml:",innerxml"`
}

type journal struct {
	Title           string  `xml:"Title"`
	ISOAbbreviation string  `xml:"ISOAbbreviation"`
	PubDate         pubDate `xml:"JournalIssue>PubDate"`
}

type pubDate struct {
	Year        string `xml:"Year"`
	MedlineDate string `xml:"MedlineDate"`
}

type xmlAuthor struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	FirstName      string `xml:"FirstName"`
	CollectiveName string `xml:"CollectiveName"`
}

var (
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
	yearPattern = regexp.MustCompile(`\d{4}`)
)

// parseArticleSet decodes an efetch PubmedArticleSet. currentYear is used
// when a record carries no usable publication year.
func parseArticleSet(r io.Reader, currentYear int) ([]types.Article, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var set articleSet
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("parsing article set: %w", err)
	}

	articles := make([]types.Article, 0, len(set.Articles))
	for _, pa := range set.Articles {
		mc := pa.Citation
		pmid := strings.TrimSpace(mc.PMID)
		if pmid == "" {
			continue
		}

		title := cleanText(mc.Article.Title.Inner)
		if title == "" {
			title = noTitle
		}

		var sections []string
		for _, s := range mc.Article.Abstract {
			if t := cleanText(s.Inner); t != "" {
				sections = append(sections, t)
			}
		}

		articles = append(articles, types.Article{
			PMID:     pmid,
			Title:    title,
			Authors:  formatAuthors(mc.Article.Authors),
			Journal:  journalName(mc.Article.Journal),
			Year:     publicationYear(mc.Article.Journal.PubDate, currentYear),
			Abstract: strings.Join(sections, " "),
		})
	}
	return articles, nil
}

// formatAuthors lists the first three authors as "ForeName LastName".
func formatAuthors(authors []xmlAuthor) string {
	var names []string
	for _, a := range authors {
		if len(names) == maxListedAuthors {
			break
		}
		first := strings.TrimSpace(a.ForeName)
		if first == "" {
			first = strings.TrimSpace(a.FirstName)
		}
		last := strings.TrimSpace(a.LastName)
		if last == "" {
			last = strings.TrimSpace(a.CollectiveName)
		}
		name := strings.TrimSpace(first + " " + last)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return noAuthors
	}
	return strings.Join(names, ", ")
}

func journalName(j journal) string {
	if t := cleanText(j.Title); t != "" {
		return t
	}
	if t := cleanText(j.ISOAbbreviation); t != "" {
		return t
	}
	return noJournal
}

func publicationYear(d pubDate, currentYear int) int {
	if y, err := strconv.Atoi(strings.TrimSpace(d.Year)); err == nil && y > 0 {
		return y
	}
	if m := yearPattern.FindString(d.MedlineDate); m != "" {
		y, _ := strconv.Atoi(m)
		return y
	}
	return currentYear
}

// cleanText strips markup tags and decodes entities.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(s, "")))
}
