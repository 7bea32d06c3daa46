// Package affiliations loads target affiliation sets from YAML files.
//
// An affiliation file names the institutional units whose output a harvest
// run should cover:
//
//	affiliations:
//	  - name: Department of Biochemistry
//	    id: "60025272"
//	  - name: Laurier Institute
//	    id: "60000001"
package affiliations

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helixir/affiliation-harvester/internal/domain"
)

// File is the on-disk affiliation file layout.
type File struct {
	Affiliations []domain.AffiliationEntry `yaml:"affiliations"`
}

// Parse decodes affiliation file contents, trims each entry, and validates
// that the file names at least one affiliation and that every entry has an id.
func Parse(data []byte) ([]domain.AffiliationEntry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing affiliation file: %w", err)
	}
	if len(f.Affiliations) == 0 {
		return nil, domain.NewValidationError("affiliations", "at least one affiliation is required")
	}

	entries := make([]domain.AffiliationEntry, 0, len(f.Affiliations))
	for i, entry := range f.Affiliations {
		entry.Name = strings.TrimSpace(entry.Name)
		entry.ID = strings.TrimSpace(entry.ID)
		if entry.ID == "" {
			return nil, domain.NewValidationError("affiliations", fmt.Sprintf("entry %d has an empty id", i))
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Load reads the affiliation file at path and returns its entries together
// with the membership set derived from them.
func Load(path string) ([]domain.AffiliationEntry, domain.AffiliationSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, domain.NewNotFoundError("affiliation file", path)
		}
		return nil, nil, fmt.Errorf("reading affiliation file: %w", err)
	}

	entries, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}
	return entries, domain.NewAffiliationSet(entries), nil
}

// Save writes the entries to path as an affiliation file.
func Save(path string, entries []domain.AffiliationEntry) error {
	data, err := yaml.Marshal(File{Affiliations: entries})
	if err != nil {
		return fmt.Errorf("marshaling affiliation file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing affiliation file: %w", err)
	}
	return nil
}
