// Package wizard models the setup pages as a fixed sequence with a cursor.
// Rendering a page is a pure function of the cursor and the collected state.
package wizard

// PageID identifies one page of the setup.
type PageID int

const (
	PageWelcome PageID = iota
	PageSaveFolder
	PageProjectFolder
	PageOptions
	PageAccount
)

// Field is an input or text block shown on a page.
type Field string

const (
	FieldIntro           Field = "intro"
	FieldSaveFolder      Field = "save_folder"
	FieldProjectFolder   Field = "project_folder"
	FieldDesktopShortcut Field = "desktop_shortcut"
	FieldAddonDiscord    Field = "addon_discord"
	FieldAddonGame2D     Field = "addon_game2d"
	FieldAccountTabs     Field = "account_tabs"
	FieldUsername        Field = "username"
	FieldPassword        Field = "password"
	FieldRepeatPassword  Field = "repeat_password"
	FieldCheck           Field = "check"
)

// Page describes one step of the wizard.
type Page struct {
	ID     PageID
	Title  string
	Text   string
	Fields []Field
}

// Pages is the fixed page sequence.
var Pages = []Page{
	{
		ID:    PageWelcome,
		Title: "Welcome to the CrystalStudio Setup",
		Text: "Setup will guide you through the installation of CrystalStudio.\n\n" +
			"It is recommended that you close all other applications before starting Setup. " +
			"This will make it possible to update relevant system files without having to reboot your computer.\n\n" +
			"Click Next to continue.",
		Fields: []Field{FieldIntro},
	},
	{
		ID:    PageSaveFolder,
		Title: "Choose save folder",
		Text: "Setup will save CrystalStudio addons and other data in the following folder. " +
			"To select a different folder, enter another folder.\n\n" +
			"Note: this is not the folder where CrystalStudio will be installed in!\n\n" +
			"Click Next to continue.",
		Fields: []Field{FieldIntro, FieldSaveFolder},
	},
	{
		ID:    PageProjectFolder,
		Title: "Choose project folder",
		Text: "Setup will save CrystalStudio projects in the following folder. " +
			"To select a different folder, enter another folder.\n\n" +
			"Note: this is not the folder where CrystalStudio will be installed in!\n\n" +
			"Click Next to continue.",
		Fields: []Field{FieldIntro, FieldProjectFolder},
	},
	{
		ID:     PageOptions,
		Title:  "Installation Options",
		Fields: []Field{FieldDesktopShortcut, FieldAddonDiscord, FieldAddonGame2D},
	},
	{
		ID:    PageAccount,
		Title: "CrystalStudio Account",
		Text: "An account is needed to install addons, publish addons or games, use coop mode and much more! " +
			"It will be hard to change this data after, so be careful.\n\n" +
			"Press Finish to create or login to the account and install CrystalStudio. Don't forget to press Check first!",
		Fields: []Field{FieldIntro, FieldAccountTabs, FieldUsername, FieldPassword, FieldRepeatPassword, FieldCheck},
	},
}

// Labels for the options page.
const (
	DesktopShortcutLabel = "Create Desktop Shortcut (Windows-only)"
	AddonsLabel          = "Install optional default addons"
)
