package clinic

import (
	"github.com/wolfman30/clinic-concierge/internal/config"
)

var (
	displayNames = map[ProviderKey]string{
		ProviderMarilia: "Dra Marília Zaneti",
		ProviderMarina:  "Dra Marina Zaneti",
	}
	shortNames = map[ProviderKey]string{
		ProviderMarilia: "Dra Marilia",
		ProviderMarina:  "Dra Marina",
	}
)

// Profile is the account configuration used when acting on behalf of one
// provider: messaging credentials, custom field ids and calendar settings.
type Profile struct {
	Key         ProviderKey
	DisplayName string

	APIKey              string
	ReplyFieldIDs       [4]string
	EventIDField        string
	ConfirmationField   string
	AssignmentField     string
	ProcedureImageField string

	// ColorID is the Google Calendar color applied to this provider's events.
	ColorID string
	Hours   BusinessHours
}

// SourceKey returns the webhook source key for the profile.
func (p Profile) SourceKey() string { return p.Key.SourceKey() }

// Profiles holds exactly one profile per provider.
type Profiles struct {
	marilia Profile
	marina  Profile
}

// NewProfiles builds the provider profiles from application config.
func NewProfiles(cfg *config.Config) Profiles {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return Profiles{
		marilia: newProfile(ProviderMarilia, cfg.Marilia, "2"),
		marina:  newProfile(ProviderMarina, cfg.Marina, "1"),
	}
}

func newProfile(key ProviderKey, fields config.ProviderFields, color string) Profile {
	return Profile{
		Key:                 key,
		DisplayName:         displayNames[key],
		APIKey:              fields.APIKey,
		ReplyFieldIDs:       fields.ReplyFieldIDs,
		EventIDField:        fields.EventIDField,
		ConfirmationField:   fields.ConfirmationField,
		AssignmentField:     fields.AssignmentField,
		ProcedureImageField: fields.ProcedureImageField,
		ColorID:             color,
		Hours:               HoursFor(key),
	}
}

// Get returns the profile for key.
func (p Profiles) Get(key ProviderKey) (Profile, error) {
	switch key {
	case ProviderMarilia:
		return p.marilia, nil
	case ProviderMarina:
		return p.marina, nil
	default:
		return Profile{}, ErrUnknownProvider
	}
}

// ForSource resolves a webhook source key to its profile.
func (p Profiles) ForSource(source string) (Profile, error) {
	key, err := ParseSource(source)
	if err != nil {
		return Profile{}, err
	}
	return p.Get(key)
}

// MatchName resolves a free-form provider name to its profile.
func (p Profiles) MatchName(name string) (Profile, bool) {
	key, ok := MatchName(name)
	if !ok {
		return Profile{}, false
	}
	profile, err := p.Get(key)
	return profile, err == nil
}
