package update

// OutdatedMessage is shown when a newer installer has been published.
const OutdatedMessage = "Installer is outdated. Please install new version!"

// Descriptor is the JSON document published at the installer URL.
// URL and SHA256 are optional and only used by self-update.
type Descriptor struct {
	Ver    int    `json:"ver"`
	URL    string `json:"url,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

// UpdateInfo contains the result of a version check
//
//nolint:revive // Name is intentional - clearer than "Info" in this context
type UpdateInfo struct {
	CurrentVersion int    `json:"current_version"`
	LatestVersion  int    `json:"latest_version"`
	Outdated       bool   `json:"outdated"`
	DownloadURL    string `json:"download_url,omitempty"`
	SHA256         string `json:"sha256,omitempty"`
}

// Message returns the advisory text for the user, or "" when up to date.
func (i *UpdateInfo) Message() string {
	if i == nil || !i.Outdated {
		return ""
	}
	return OutdatedMessage
}

// UpdateProgress represents the progress of a self-update
//
//nolint:revive // Name is intentional - clearer than "Progress" in this context
type UpdateProgress struct {
	Stage      string  `json:"stage"` // "checking", "downloading", "verifying", "applying", "complete"
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message"`
}
