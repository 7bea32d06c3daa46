package scopus

import "encoding/xml"

// SearchResults represents one page of the Scopus Search API response.
type SearchResults struct {
	XMLName      xml.Name `xml:"search-results"`
	TotalResults int      `xml:"totalResults"`
	StartIndex   int      `xml:"startIndex"`
	ItemsPerPage int      `xml:"itemsPerPage"`
	Entries      []Entry  `xml:"entry"`
}

// Entry represents a single work in the search results feed. The descriptive
// metadata elements (dc:, prism: and friends) vary by document type, so
// everything not modeled explicitly lands in Elements.
type Entry struct {
	// Identifier is the work identifier, e.g. "SCOPUS_ID:85012345678".
	Identifier string `xml:"identifier"`

	// CitedByCount is kept as text; not every entry carries one.
	CitedByCount string `xml:"citedby-count"`

	// Authors lists the entry's authors. The API enumerates at most 100
	// authors per entry, so authors beyond that ceiling never appear here.
	Authors []EntryAuthor `xml:"author"`

	// Elements collects the remaining child elements of the entry.
	Elements []Element `xml:",any"`
}

// Element is one unmodeled child element, keyed later by its local name.
type Element struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// EntryAuthor represents one author on a search result entry.
type EntryAuthor struct {
	Seq        string `xml:"seq,attr"`
	ID         string `xml:"authid"`
	Name       string `xml:"authname"`
	ProfileURL string `xml:"author-url"`

	// AffiliationIDs lists the affiliation ids attached to the author on
	// this entry; an author may carry several.
	AffiliationIDs []string `xml:"afid"`
}

// AuthorResponse represents the Author Retrieval API response for one author.
type AuthorResponse struct {
	XMLName  xml.Name      `xml:"author-retrieval-response"`
	CoreData AuthorCore    `xml:"coredata"`
	Profile  AuthorProfile `xml:"author-profile"`
}

// AuthorCore holds the coredata block of an author retrieval response.
type AuthorCore struct {
	// Identifier is the canonical author identifier, e.g. "AUTHOR_ID:7004212771".
	Identifier string `xml:"identifier"`
}

// AuthorProfile holds the profile block of an author retrieval response.
type AuthorProfile struct {
	PreferredName *PreferredName      `xml:"preferred-name"`
	Current       *AffiliationCurrent `xml:"affiliation-current"`
}

// PreferredName is the author's preferred name block.
type PreferredName struct {
	IndexedName string `xml:"indexed-name"`
	Surname     string `xml:"surname"`
	GivenName   string `xml:"given-name"`
}

// AffiliationCurrent wraps the presently active affiliations on a profile.
type AffiliationCurrent struct {
	Affiliations []CurrentAffiliation `xml:"affiliation"`
}

// CurrentAffiliation is one presently active affiliation block.
type CurrentAffiliation struct {
	// ID is the affiliation's own id; Parent is the id of the broader
	// organizational unit it belongs to, empty when the affiliation is
	// top-level.
	ID     string `xml:"affiliation-id,attr"`
	Parent string `xml:"parent,attr"`
	IPDoc  IPDoc  `xml:"ip-doc"`
}

// IPDoc carries the institution profile nested in an affiliation block.
type IPDoc struct {
	PreferredName       string `xml:"preferred-name"`
	ParentPreferredName string `xml:"parent-preferred-name"`
}
