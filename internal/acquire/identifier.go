// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"net/url"
	"regexp"
	"strings"
)

// IdentifierType classifies a user-supplied article reference.
type IdentifierType int

const (
	TypeUnknown IdentifierType = iota
	TypePMID
	TypePubMedURL
)

func (t IdentifierType) String() string {
	switch t {
	case TypePMID:
		return "pmid"
	case TypePubMedURL:
		return "pubmed-url"
	default:
		return "unknown"
	}
}

// pmidPattern matches "12345678", "PMID:12345678" and "PMID 12345678".
var pmidPattern = regexp.MustCompile(`^(?i:pmid)?[:\s]*(\d+)$`)

// pubmedPathPattern matches the record path of a PubMed article page.
var pubmedPathPattern = regexp.MustCompile(`^/(\d+)/?$`)

// Classify determines the identifier type and returns the bare PMID.
func Classify(identifier string) (IdentifierType, string) {
	identifier = strings.TrimSpace(identifier)

	if m := pmidPattern.FindStringSubmatch(identifier); m != nil {
		return TypePMID, m[1]
	}

	if u, err := url.Parse(identifier); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if strings.HasSuffix(u.Host, "pubmed.ncbi.nlm.nih.gov") {
			if m := pubmedPathPattern.FindStringSubmatch(u.Path); m != nil {
				return TypePubMedURL, m[1]
			}
		}
	}

	return TypeUnknown, identifier
}

// NormalizePMIDs classifies each input, returning the bare PMIDs in order
// and the inputs that could not be classified. Duplicates are dropped.
func NormalizePMIDs(inputs []string) (pmids, rejected []string) {
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		t, id := Classify(in)
		if t == TypeUnknown {
			rejected = append(rejected, in)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		pmids = append(pmids, id)
	}
	return pmids, rejected
}

// SanitizeDOI turns a DOI into a filename fragment: path separators become
// "_" and dots become "-". An empty DOI yields "no-doi".
func SanitizeDOI(doi string) string {
	if doi == "" {
		return "no-doi"
	}
	return strings.NewReplacer("/", "_", `\`, "_", ".", "-").Replace(doi)
}

func sanitizeIdentifier(id string) string {
	return strings.NewReplacer("/", "_", `\`, "_").Replace(id)
}

// PDFFileName returns the name of the downloaded PDF for an article.
func PDFFileName(identifier, doi string) string {
	return "PMID_" + sanitizeIdentifier(identifier) + "_" + SanitizeDOI(doi) + ".pdf"
}

// InstructionsFileName returns the name of the manual-access fallback file.
func InstructionsFileName(identifier, doi string) string {
	return "PMID_" + sanitizeIdentifier(identifier) + "_" + SanitizeDOI(doi) + "_access_instructions.txt"
}
