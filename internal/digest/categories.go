package digest

// Category names one of the fixed source sections articles are pulled
// from.
type Category string

const (
	CategoryIndia      Category = "india"
	CategoryPolitics   Category = "politics"
	CategorySports     Category = "sports"
	CategoryTechnology Category = "technology"
	CategoryBusiness   Category = "business"
	CategoryWorld      Category = "world"
	CategoryExplained  Category = "explained"
	CategoryLifestyle  Category = "lifestyle"
	CategoryOpinion    Category = "opinion"
	CategoryCities     Category = "cities"
)

// listingPaths maps each category to its listing page path on the
// source site.
var listingPaths = map[Category]string{
	CategoryIndia:      "/section/india/",
	CategoryPolitics:   "/section/political-pulse/",
	CategorySports:     "/section/sports/",
	CategoryTechnology: "/section/technology/",
	CategoryBusiness:   "/section/business/",
	CategoryWorld:      "/section/world/",
	CategoryExplained:  "/section/explained/",
	CategoryLifestyle:  "/section/lifestyle/",
	CategoryOpinion:    "/section/opinion/",
	CategoryCities:     "/section/cities/",
}

// canonical ordering used when a request doesn't specify categories.
var allCategories = []Category{
	CategoryIndia,
	CategoryPolitics,
	CategorySports,
	CategoryTechnology,
	CategoryBusiness,
	CategoryWorld,
	CategoryExplained,
	CategoryLifestyle,
	CategoryOpinion,
	CategoryCities,
}

// Categories returns every known category in canonical order.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// ValidCategory reports whether c names a known source section.
func ValidCategory(c Category) bool {
	_, ok := listingPaths[c]
	return ok
}

// ListingPath returns the listing page path for a category, or "" for
// an unknown one.
func ListingPath(c Category) string {
	return listingPaths[c]
}
