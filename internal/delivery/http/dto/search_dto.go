package dto

import "concierge-api/internal/domain/entity"

type SearchRequest struct {
	Query          string   `json:"query"`
	HotelID        string   `json:"hotel_id"`
	DocumentID     string   `json:"document_id,omitempty"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	MatchThreshold *float64 `json:"match_threshold,omitempty"`
}

type SearchResponse struct {
	Success    bool                  `json:"success"`
	Found      bool                  `json:"found"`
	SearchType string                `json:"search_type"`
	Count      int                   `json:"count"`
	Results    []entity.SearchResult `json:"results"`
	Context    string                `json:"context"`
}
