package scopus

import (
	"errors"
	"strings"

	"github.com/helixir/affiliation-harvester/internal/domain"
)

// authorIDPrefix precedes the numeric author identifier in the canonical
// identifier element.
const authorIDPrefix = "AUTHOR_ID:"

// ParseAuthorDocument decodes one raw author retrieval response. A document
// that does not parse surfaces as a MalformedDocumentError naming the author
// id it was fetched for.
func ParseAuthorDocument(body []byte, authorID string) (*AuthorResponse, error) {
	var doc AuthorResponse
	if err := DecodeDocument(body, &doc); err != nil {
		return nil, domain.NewMalformedDocumentError("author profile", authorID, err)
	}
	return &doc, nil
}

// ExtractAuthorProfile builds the author record from a parsed retrieval
// response. The canonical identifier and the full preferred-name block are
// required; missing either is a MalformedDocumentError, not a silently
// skipped record. A current affiliation is kept when its own id or its
// parent id is in the target set; an author with no matching current
// affiliations still yields a valid profile with an empty department list.
func ExtractAuthorProfile(doc *AuthorResponse, authorID string, target domain.AffiliationSet) (*domain.AuthorProfile, error) {
	id := strings.TrimPrefix(strings.TrimSpace(doc.CoreData.Identifier), authorIDPrefix)
	if id == "" {
		return nil, domain.NewMalformedDocumentError("author profile", authorID,
			errors.New("missing canonical author identifier"))
	}

	name := doc.Profile.PreferredName
	if name == nil {
		return nil, domain.NewMalformedDocumentError("author profile", authorID,
			errors.New("missing preferred-name block"))
	}
	indexedName := strings.TrimSpace(name.IndexedName)
	surname := strings.TrimSpace(name.Surname)
	givenName := strings.TrimSpace(name.GivenName)
	if indexedName == "" || surname == "" || givenName == "" {
		return nil, domain.NewMalformedDocumentError("author profile", authorID,
			errors.New("incomplete preferred-name block"))
	}

	profile := &domain.AuthorProfile{
		AuthorID:    id,
		IndexedName: indexedName,
		Surname:     surname,
		GivenName:   givenName,
		Departments: []domain.Department{},
	}

	if doc.Profile.Current == nil {
		return profile, nil
	}

	for _, aff := range doc.Profile.Current.Affiliations {
		ownID := strings.TrimSpace(aff.ID)
		parentID := strings.TrimSpace(aff.Parent)
		if !target.Contains(ownID) && (parentID == "" || !target.Contains(parentID)) {
			continue
		}
		profile.Departments = append(profile.Departments, domain.Department{
			Name:   strings.TrimSpace(aff.IPDoc.PreferredName),
			Kind:   domain.DepartmentKindCurrent,
			Parent: strings.TrimSpace(aff.IPDoc.ParentPreferredName),
		})
	}

	return profile, nil
}
