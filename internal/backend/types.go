package backend

import "encoding/json"

type Movie struct {
	Title  string `json:"Title"`
	Year   string `json:"Year"`
	ImdbID string `json:"imdbID"`
	Type   string `json:"Type"`
	Poster string `json:"Poster"`
}

type SearchResult struct {
	Search       []Movie `json:"Search"`
	TotalResults string  `json:"totalResults"`
}

type subtitlesRequest struct {
	ImdbID        string `json:"imdbID"`
	LanguageCode  string `json:"languageCode"`
	SeasonNumber  int    `json:"seasonNumber,omitempty"`
	EpisodeNumber int    `json:"episodeNumber,omitempty"`
}

type subtitlesResponse struct {
	SrtContent   string          `json:"srtContent"`
	SubtitleInfo json.RawMessage `json:"subtitleInfo"`
}

type filePathRequest struct {
	FilePath string `json:"filePath"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

type generateRequest struct {
	Text     string `json:"text"`
	FilePath string `json:"filePath"`
}

type generateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Feedback struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type transcribeRequest struct {
	Audio    []byte `json:"audio"`
	Language string `json:"language,omitempty"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}
