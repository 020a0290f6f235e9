// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package candidate maps an article's identifiers to the ordered list of
// proxy-wrapped URLs where its PDF might live.
//
// Order encodes priority: callers try entries in sequence and stop at the
// first PDF. Publishers that most often answer through the proxy come first.
package candidate

import (
	"net/url"
	"strings"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// DefaultProxyLoginBase is the University of Alberta EZProxy login endpoint.
const DefaultProxyLoginBase = "https://login.ezproxy.library.ualberta.ca/login"

// doiTemplates are tried for every DOI, in order. "%s" is replaced by the DOI.
var doiTemplates = []string{
	"https://doi.org/%s",
	"https://link.springer.com/content/pdf/%s.pdf",
	"https://onlinelibrary.wiley.com/doi/pdf/%s",
	"https://www.nature.com/articles/%s.pdf",
	"https://pubs.acs.org/doi/pdf/%s",
	"https://journals.asm.org/doi/pdf/%s",
}

// Manual-only entries: pages a human can navigate but which never serve a
// PDF body directly.
var (
	doiManualTemplates = []string{"https://academic.oup.com/search-results?page=1&q=%s"}
	pmcPDFTemplate     = "https://www.ncbi.nlm.nih.gov/pmc/articles/%s/pdf/"
	pmcManualTemplates = []string{"https://www.ncbi.nlm.nih.gov/pmc/articles/%s/"}
	pubmedPageTemplate = "https://pubmed.ncbi.nlm.nih.gov/%s/"
)

// Generator wraps publisher URLs through the proxy login base.
type Generator struct {
	ProxyLoginBase string
}

// New returns a Generator for base, falling back to DefaultProxyLoginBase.
func New(base string) Generator {
	if base == "" {
		base = DefaultProxyLoginBase
	}
	return Generator{ProxyLoginBase: base}
}

// Fetch returns the candidates for automated attempts: the DOI publisher
// patterns first, then the PMC PDF path.
func (g Generator) Fetch(ids types.ArticleIDs) []string {
	var out []string
	if ids.DOI != "" {
		out = g.appendWrapped(out, doiTemplates, ids.DOI)
	}
	if ids.PMCID != "" {
		out = append(out, g.Wrap(fill(pmcPDFTemplate, ids.PMCID)))
	}
	return out
}

// Manual returns the longer list written into the instructions file. It
// extends each group of Fetch with pages a human can navigate, and ends with
// the PubMed record itself.
func (g Generator) Manual(ids types.ArticleIDs, pmid string) []string {
	var out []string
	if ids.DOI != "" {
		out = g.appendWrapped(out, doiTemplates, ids.DOI)
		out = g.appendWrapped(out, doiManualTemplates, ids.DOI)
	}
	if ids.PMCID != "" {
		out = append(out, g.Wrap(fill(pmcPDFTemplate, ids.PMCID)))
		out = g.appendWrapped(out, pmcManualTemplates, ids.PMCID)
	}
	if pmid != "" {
		out = append(out, g.Wrap(fill(pubmedPageTemplate, pmid)))
	}
	return out
}

// Wrap routes target through the proxy: base + "?url=" + encoded target.
func (g Generator) Wrap(target string) string {
	return g.ProxyLoginBase + "?url=" + EncodeComponent(target)
}

func (g Generator) appendWrapped(out []string, templates []string, value string) []string {
	for _, tmpl := range templates {
		out = append(out, g.Wrap(fill(tmpl, value)))
	}
	return out
}

func fill(tmpl, value string) string {
	return strings.Replace(tmpl, "%s", value, 1)
}

// componentUnescape undoes the query escaping of characters that URI
// component encoding leaves alone, and turns "+" into %20.
var componentUnescape = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeComponent percent-encodes s the way URI component encoding does:
// only A-Z a-z 0-9 and - _ . ! ~ * ' ( ) pass through unescaped.
func EncodeComponent(s string) string {
	return componentUnescape.Replace(url.QueryEscape(s))
}
