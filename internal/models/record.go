package models

import "time"

// CredentialRecord is a breach record held by the internal document store.
// The index store only carries its ID, login, url, password and timestamp.
type CredentialRecord struct {
	ID        string            `json:"id"`
	Login     string            `json:"login"`
	Password  string            `json:"password,omitempty"`
	URL       string            `json:"url,omitempty"`
	Domain    string            `json:"domain,omitempty"`
	Source    string            `json:"source,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
