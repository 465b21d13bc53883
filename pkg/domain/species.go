package domain

// LocaleBokmaal is the primary vernacular-name locale carried by the
// reference dataset.
const LocaleBokmaal = "nb"

// Conservation-category jurisdictions present in the reference dataset.
const (
	JurisdictionNorway   = "norway"
	JurisdictionSvalbard = "svalbard"
)

// SpeciesEntry is one row of the bulk-loaded species reference dataset.
// Entries are immutable for a given data version and are replaced wholesale
// on version upgrade.
type SpeciesEntry struct {
	ID              string            `json:"id"` // Genus_Species, stable and derived
	Genus           string            `json:"genus"`
	Species         string            `json:"species"`
	ScientificName  string            `json:"scientific_name"`
	VernacularNames map[string]string `json:"vernacular_names,omitempty"` // locale → name
	Kingdom         string            `json:"kingdom,omitempty"`
	Phylum          string            `json:"phylum,omitempty"`
	Class           string            `json:"class,omitempty"`
	Order           string            `json:"order,omitempty"`
	Family          string            `json:"family,omitempty"`
	Categories      map[string]string `json:"categories,omitempty"` // jurisdiction → category
}

// Vernacular returns the entry's name in the given locale, empty when the
// dataset carries none.
func (e SpeciesEntry) Vernacular(locale string) string {
	if e.VernacularNames == nil {
		return ""
	}
	return e.VernacularNames[locale]
}

// Ref builds the denormalized reference embedded into observation records.
func (e SpeciesEntry) Ref() SpeciesRef {
	return SpeciesRef{
		ScientificName: e.ScientificName,
		VernacularName: e.Vernacular(LocaleBokmaal),
		Category:       e.Categories[JurisdictionNorway],
	}
}
