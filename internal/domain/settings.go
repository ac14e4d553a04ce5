package domain

// Settings holds the platform-wide quota knobs an admin may tune at runtime.
type Settings struct {
	FreeApplicationsPerWindow int `json:"freeApplicationsPerWindow" bson:"freeApplicationsPerWindow"`
	NGOBaseJobLimit           int `json:"ngoBaseJobLimit" bson:"ngoBaseJobLimit"`
}

// DefaultSettings returns the settings used when none are stored.
func DefaultSettings() Settings {
	return Settings{
		FreeApplicationsPerWindow: DefaultFreeApplications,
		NGOBaseJobLimit:           DefaultNGOJobLimit,
	}
}

// Validate checks the settings are usable.
func (s Settings) Validate() error {
	const op = "Settings.Validate"
	if s.FreeApplicationsPerWindow < 0 {
		return Invalid(op, "freeApplicationsPerWindow must not be negative")
	}
	if s.NGOBaseJobLimit < 0 {
		return Invalid(op, "ngoBaseJobLimit must not be negative")
	}
	return nil
}
