// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// Library help pages listed under the alternative access methods.
const (
	bookmarkletURL = "https://www.library.ualberta.ca/databases_help/ezproxy"
	askUsURL       = "https://www.library.ualberta.ca/ask-us"
)

const notAvailable = "Not available"

// Instructions renders the manual-access document for an article whose PDF
// could not be fetched. urls are listed in order, numbered from 1.
func Instructions(generated time.Time, pmid string, ids types.ArticleIDs, urls []string) string {
	var b strings.Builder

	b.WriteString("University of Alberta EZProxy Access Instructions\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", generated.Format("1/2/2006, 3:04:05 PM"))

	b.WriteString("Article Information:\n")
	fmt.Fprintf(&b, "- PubMed ID: %s\n", pmid)
	fmt.Fprintf(&b, "- DOI: %s\n", orNotAvailable(ids.DOI))
	fmt.Fprintf(&b, "- PMC ID: %s\n\n", orNotAvailable(ids.PMCID))

	b.WriteString("INSTRUCTIONS FOR PDF ACCESS:\n\n")
	b.WriteString("1. Make sure you're connected to the University of Alberta network OR have valid CCID credentials\n")
	b.WriteString("2. Click on any of the EZProxy links below\n")
	b.WriteString("3. If prompted, log in with your Campus Computing ID and password\n")
	b.WriteString("4. Look for \"PDF\", \"Full Text\", or \"Download\" links on the article page\n\n")

	b.WriteString("EZProxy Access URLs:\n")
	for i, u := range urls {
		fmt.Fprintf(&b, "%d. %s\n", i+1, u)
	}
	b.WriteString("\n")

	b.WriteString("Alternative Methods:\n")
	fmt.Fprintf(&b, "- Use the Library Bookmarklet: %s\n", bookmarkletURL)
	b.WriteString("- Search directly through library databases\n")
	fmt.Fprintf(&b, "- Contact the library if you need assistance: %s\n\n", askUsURL)

	b.WriteString("Note: Some articles may require institutional subscriptions even with EZProxy access.\n")
	b.WriteString("Free alternatives may be available through PubMed Central or institutional repositories.\n")
	return b.String()
}

func orNotAvailable(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
