package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for trainer documents.
//
// Text fields use the simple analyzer: it splits on non-letters and lowercases, which
// keeps Hangul words intact so prefix queries can match partial names like "강남".
// Display fields keep the original text for building results.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()

	// --- Text fields (full-text searchable) ---

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = simple.Name
	nameFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	subtitleFieldMapping := bleve.NewTextFieldMapping()
	subtitleFieldMapping.Analyzer = simple.Name
	docMapping.AddFieldMappingsAt("subtitle", subtitleFieldMapping)

	regionFieldMapping := bleve.NewTextFieldMapping()
	regionFieldMapping.Analyzer = simple.Name
	docMapping.AddFieldMappingsAt("region", regionFieldMapping)

	// Excerpt - searchable but not stored
	excerptFieldMapping := bleve.NewTextFieldMapping()
	excerptFieldMapping.Analyzer = simple.Name
	excerptFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("excerpt", excerptFieldMapping)

	// --- Keyword fields (exact match) ---

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	idFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	regionKeyFieldMapping := bleve.NewTextFieldMapping()
	regionKeyFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("region_key", regionKeyFieldMapping)

	// --- Stored display fields (not searched) ---

	for _, field := range []string{"display_name", "display_subtitle", "display_region", "image_url"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = true
		docMapping.AddFieldMappingsAt(field, fm)
	}

	// --- Numeric fields (sorting) ---

	likeCountFieldMapping := bleve.NewNumericFieldMapping()
	likeCountFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("like_count", likeCountFieldMapping)

	updatedAtFieldMapping := bleve.NewNumericFieldMapping()
	updatedAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("updated_at", updatedAtFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
