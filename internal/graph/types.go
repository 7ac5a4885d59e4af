package graph

import "time"

// Item is a OneDrive drive item as returned by a folder listing.
// Fields are normalized from the Graph API response.
type Item struct {
	ID           string
	Name         string
	Size         int64
	IsFolder     bool
	IsPackage    bool // OneNote packages have no downloadable content
	MimeType     string
	QuickXorHash string // base64; empty when Graph omits it
	CreatedAt    time.Time
	ModifiedAt   time.Time
	TakenAt      time.Time // photo facet; zero when absent
	DownloadURL  string    // pre-authenticated, ephemeral; NEVER log
}

// User identifies the signed-in account.
type User struct {
	ID          string
	DisplayName string
	Email       string
}
