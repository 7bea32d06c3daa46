package scopus

import (
	"strconv"
	"strings"

	"github.com/helixir/affiliation-harvester/internal/domain"
)

// workIDPrefix precedes the numeric work identifier in dc:identifier.
const workIDPrefix = "SCOPUS_ID:"

// ParseSearchPage decodes one raw search result page. A page that does not
// parse surfaces as a MalformedDocumentError naming the offset, so the
// caller can skip the page and keep its siblings.
func ParseSearchPage(body []byte, offset int) (*SearchResults, error) {
	var page SearchResults
	if err := DecodeDocument(body, &page); err != nil {
		return nil, domain.NewMalformedDocumentError("search page", strconv.Itoa(offset), err)
	}
	return &page, nil
}

// PageExtraction is what one search page contributed: the work records in
// document order plus both correlation index directions, ready to merge into
// the run-wide accumulators.
type PageExtraction struct {
	Works       []domain.WorkRecord
	WorkAuthors domain.WorkAuthorsIndex
	AuthorWorks domain.AuthorWorksIndex
}

// ExtractWorks walks a parsed search page and emits the per-work records and
// correlation indices. Every work on the page gets a WorkAuthorsIndex key,
// even when none of its authors matched the target set. Author profile URLs
// are recorded only for authors carrying a matching affiliation id; the
// author id feeding AuthorWorksIndex is the trailing path segment of that
// URL. Entries without a work identifier contribute nothing.
func ExtractWorks(page *SearchResults, target domain.AffiliationSet) *PageExtraction {
	ex := &PageExtraction{
		Works:       make([]domain.WorkRecord, 0, len(page.Entries)),
		WorkAuthors: make(domain.WorkAuthorsIndex),
		AuthorWorks: make(domain.AuthorWorksIndex),
	}

	for i := range page.Entries {
		entry := &page.Entries[i]

		workID := strings.TrimPrefix(strings.TrimSpace(entry.Identifier), workIDPrefix)
		if workID == "" {
			continue
		}

		ex.WorkAuthors.Add(workID)

		work := domain.WorkRecord{
			WorkID:      workID,
			Fields:      fieldMap(entry.Elements),
			AuthorNames: make([]string, 0, len(entry.Authors)),
		}
		if count, err := strconv.Atoi(strings.TrimSpace(entry.CitedByCount)); err == nil {
			work.CitedByCount = &count
		}

		for _, author := range entry.Authors {
			if author.Name != "" {
				work.AuthorNames = append(work.AuthorNames, author.Name)
			}
			if !matchesAffiliation(author.AffiliationIDs, target) {
				continue
			}
			authorID := trailingSegment(author.ProfileURL)
			if authorID == "" {
				continue
			}
			ex.WorkAuthors.Add(workID, author.ProfileURL)
			ex.AuthorWorks.Add(authorID, workID)
		}

		ex.Works = append(ex.Works, work)
	}

	return ex
}

// fieldMap flattens the unmodeled entry elements into a mapping keyed by
// local tag name. Container elements carry no text of their own and are
// dropped; a tag repeated within one entry keeps its last occurrence.
func fieldMap(elements []Element) map[string]string {
	fields := make(map[string]string, len(elements))
	for _, el := range elements {
		value := strings.TrimSpace(el.Value)
		if value == "" {
			continue
		}
		fields[el.XMLName.Local] = value
	}
	return fields
}

// matchesAffiliation reports whether any of the author's affiliation ids is
// in the target set.
func matchesAffiliation(ids []string, target domain.AffiliationSet) bool {
	for _, id := range ids {
		if target.Contains(strings.TrimSpace(id)) {
			return true
		}
	}
	return false
}

// trailingSegment returns the last path segment of a profile URL, which is
// the author's numeric identifier.
func trailingSegment(rawURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(rawURL), "/")
	if trimmed == "" {
		return ""
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
