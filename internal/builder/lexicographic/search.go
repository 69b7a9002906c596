package lexicographic

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Hit is one search result
type Hit struct {
	Path          string   `json:"path"`
	Documentation string   `json:"documentation"`
	Units         string   `json:"units"`
	IDSName       string   `json:"ids_name"`
	Keywords      []string `json:"keywords,omitempty"`
	Score         float64  `json:"score"`
}

// NewSearchRequest matches text against path, documentation and keywords,
// optionally restricted to one IDS
func NewSearchRequest(text, idsName string, size int) *bleve.SearchRequest {
	docQuery := bleve.NewMatchQuery(text)
	docQuery.SetField("documentation")

	pathQuery := bleve.NewMatchQuery(text)
	pathQuery.SetField("path")
	pathQuery.SetBoost(2)

	keywordQuery := bleve.NewMatchQuery(text)
	keywordQuery.SetField("keywords")

	var q query.Query = bleve.NewDisjunctionQuery(docQuery, pathQuery, keywordQuery)
	if idsName != "" {
		idsQuery := bleve.NewTermQuery(idsName)
		idsQuery.SetField("ids_name")
		q = bleve.NewConjunctionQuery(q, idsQuery)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = size
	req.Fields = []string{"*"}
	return req
}

// HitsFromResult converts the stored fields of a result into hits
func HitsFromResult(res *bleve.SearchResult) []Hit {
	hits := make([]Hit, 0, len(res.Hits))
	for _, match := range res.Hits {
		hit := Hit{
			Path:  match.ID,
			Score: match.Score,
		}
		if documentation, ok := match.Fields["documentation"].(string); ok {
			hit.Documentation = documentation
		}
		if units, ok := match.Fields["units"].(string); ok {
			hit.Units = units
		}
		if idsName, ok := match.Fields["ids_name"].(string); ok {
			hit.IDSName = idsName
		}
		switch keywords := match.Fields["keywords"].(type) {
		case string:
			hit.Keywords = []string{keywords}
		case []interface{}:
			hit.Keywords = make([]string, 0, len(keywords))
			for _, kw := range keywords {
				if kwStr, ok := kw.(string); ok {
					hit.Keywords = append(hit.Keywords, kwStr)
				}
			}
		}
		hits = append(hits, hit)
	}
	return hits
}
