package config

import "time"

// Remote endpoints used by the installer. The auth templates carry the
// %username% and %password% placeholders.
const (
	DefaultCheckURL        = "https://extras.snackbag.net/crystal/register/validate?username=%username%&password=%password%"
	DefaultRegisterURL     = "https://extras.snackbag.net/crystal/register?username=%username%&password=%password%"
	DefaultLoginURL        = "http://extras.snackbag.net/crystal/login?username=%username%&password=%password%"
	DefaultUserURL         = "https://extras.snackbag.net/crystal/get/"
	DefaultInstallerURL    = "https://raw.githubusercontent.com/snackbag-net/CrystalStudio-Installer/main/installer/installer.json"
	DefaultDownloadURL     = "https://github.com/snackbag-net/empty-installation/archive/refs/tags/test-3.zip"
	DefaultConnectivityURL = "https://extras.snackbag.net/"
)

// Local layout defaults.
const (
	// DefaultScratchDir holds the downloaded archive and its extracted tree for one run.
	DefaultScratchDir = "installation"

	// DefaultDatabaseName is the install history database inside the save folder.
	DefaultDatabaseName = "setup-history.db"

	// DefaultStepDelay is the pause between two progress milestones.
	DefaultStepDelay = 200 * time.Millisecond

	// DefaultHTTPTimeout bounds every remote call except the connectivity probe.
	DefaultHTTPTimeout = 60 * time.Second

	// ConnectivityTimeout bounds the startup reachability probe.
	ConnectivityTimeout = time.Second

	vendorDir  = "SnackBag"
	productDir = "CrystalStudio"
)

// DefaultPackageManager is the argv prefix used to install a library.
var DefaultPackageManager = []string{"python", "-m", "pip", "install"}

// DefaultUpgradeArgs upgrades the package manager once before any library.
var DefaultUpgradeArgs = []string{"--upgrade", "pip"}

// DevModeWarning is shown whenever developer mode is enabled.
const DevModeWarning = "Developer mode activated - Use with caution. \n\n" +
	"IF SOMEBODY HAS ASKED YOU TO OPEN THIS, THERE IS AN 11/10 CHANCE YOU ARE GETTING SCAMMED! CLOSE THE INSTALLER IMMEDIATELY"
