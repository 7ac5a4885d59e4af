package credential

import (
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// Provider names used by the CLI, the config file, and cache metadata.
const (
	OneDrive     = "onedrive"
	GooglePhotos = "google"
)

// oneDriveTenant restricts sign-in to personal Microsoft accounts, which is
// where consumer OneDrive folders live.
const oneDriveTenant = "consumers"

var oneDriveScopes = []string{
	"offline_access",
	"Files.Read",
	"Files.ReadWrite",
}

// GooglePhotosScopes are requested for the destination account: append-only
// upload, listing app-created albums, and sharing them.
var GooglePhotosScopes = []string{
	"https://www.googleapis.com/auth/photoslibrary.appendonly",
	"https://www.googleapis.com/auth/photoslibrary.readonly.appcreateddata",
	"https://www.googleapis.com/auth/photoslibrary.sharing",
}

// OneDriveConfig builds the OAuth2 config for a public (secretless) Azure AD
// application registered for personal accounts.
func OneDriveConfig(clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   oneDriveScopes,
		Endpoint: microsoft.AzureADEndpoint(oneDriveTenant),
	}
}

// GoogleConfig builds the OAuth2 config for a Google "installed app" client.
func GoogleConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       GooglePhotosScopes,
		Endpoint:     google.Endpoint,
	}
}

// GoogleConfigFromSecrets reads a client-secrets JSON file as downloaded
// from the Google Cloud console.
func GoogleConfigFromSecrets(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credential: reading client secrets %s: %w", path, err)
	}

	cfg, err := google.ConfigFromJSON(data, GooglePhotosScopes...)
	if err != nil {
		return nil, fmt.Errorf("credential: parsing client secrets %s: %w", path, err)
	}

	return cfg, nil
}

// OneDriveProvider registers the OneDrive source account with the Store.
func OneDriveProvider(clientID, cachePath string, flow InteractiveFlow) Provider {
	return Provider{
		Name:        OneDrive,
		OAuth:       OneDriveConfig(clientID),
		CachePath:   cachePath,
		Interactive: flow,
	}
}

// GoogleProvider registers the Google Photos destination account with the Store.
func GoogleProvider(cfg *oauth2.Config, cachePath string, flow InteractiveFlow) Provider {
	return Provider{
		Name:        GooglePhotos,
		OAuth:       cfg,
		CachePath:   cachePath,
		Interactive: flow,
	}
}
