package models

import "time"

// AssetDetection is a Supabase credential found inside a static asset
type AssetDetection struct {
	ProjectID     string    `json:"projectId"`
	SupabaseURL   string    `json:"supabaseUrl"`
	AssetURL      string    `json:"assetUrl"`
	KeyType       string    `json:"keyType"`
	KeyLabel      string    `json:"keyLabel"`
	APIKeySnippet string    `json:"apiKeySnippet"`
	APIKey        string    `json:"apiKey,omitempty"`
	DetectedAt    time.Time `json:"detectedAt"`
}

// LeakDetection is a generic credential match attributed to a host
type LeakDetection struct {
	Host           string    `json:"host"`
	SourceURL      string    `json:"sourceUrl,omitempty"`
	AssetURL       string    `json:"assetUrl,omitempty"`
	Pattern        string    `json:"pattern"`
	MatchSnippet   string    `json:"matchSnippet"`
	ContextSnippet string    `json:"contextSnippet,omitempty"`
	EncodedSnippet string    `json:"encodedSnippet,omitempty"`
	DetectedAt     time.Time `json:"detectedAt"`
}
