package internal

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Profile is one configured catalog export: which catalog to read, the
// mapping overrides to apply, and the feed files to write.
type Profile struct {
	Name            string        `mapstructure:"name" validate:"required"`
	CatalogID       int64         `mapstructure:"catalog_id" validate:"gt=0"`
	ParentCatalogID int64         `mapstructure:"parent_catalog_id" validate:"gte=0"`
	PriceField      string        `mapstructure:"price_field" validate:"required"`
	Debug           bool          `mapstructure:"debug"`
	Company         string        `mapstructure:"company"`
	Schedule        time.Duration `mapstructure:"schedule" validate:"gte=0"`
	Mappings        MappingSet    `mapstructure:"mappings"`
	Feeds           []FeedTarget  `mapstructure:"feeds" validate:"required,min=1,dive"`
}

// MappingSet holds mapping overrides per format. All applies to every format
// before the format-specific lists.
type MappingSet struct {
	All []MappingEntry `mapstructure:"all" validate:"dive"`
	XML []MappingEntry `mapstructure:"xml" validate:"dive"`
	CSV []MappingEntry `mapstructure:"csv" validate:"dive"`
	YML []MappingEntry `mapstructure:"yml" validate:"dive"`
}

// MappingEntry maps an output field to a binding expression such as
// ".NAME", "parent.SECTION_ID" or a literal.
type MappingEntry struct {
	Field string `mapstructure:"field" validate:"required,xmlname"`
	Value string `mapstructure:"value"`
}

// FeedTarget is one file written by a profile.
type FeedTarget struct {
	Path       string `mapstructure:"path" validate:"required"`
	Format     string `mapstructure:"format" validate:"required,oneof=xml csv yml"`
	Delimiter  string `mapstructure:"delimiter" validate:"omitempty,len=1"`
	Encoding   string `mapstructure:"encoding" validate:"omitempty,oneof=utf-8 windows-1251"`
	PublishKey string `mapstructure:"publish_key" validate:"required_with=RetiredKeys"`

	// RetiredKeys are keys the feed was published under before. Objects
	// left under them are removed after the next successful publish.
	RetiredKeys []string `mapstructure:"retired_keys" validate:"dive,required"`
}

// DelimiterRune returns the configured CSV delimiter, zero when unset.
func (t FeedTarget) DelimiterRune() rune {
	if t.Delimiter == "" {
		return 0
	}
	return []rune(t.Delimiter)[0]
}

// Profiles is a validated, name-indexed profile set in file order.
type Profiles struct {
	list   []Profile
	byName map[string]int
}

// Get returns a profile by name.
func (p *Profiles) Get(name string) (Profile, bool) {
	i, ok := p.byName[name]
	if !ok {
		return Profile{}, false
	}
	return p.list[i], true
}

// All returns every profile in file order.
func (p *Profiles) All() []Profile {
	return append([]Profile(nil), p.list...)
}

type profilesFile struct {
	Profiles []Profile `mapstructure:"profiles" validate:"dive"`
}

// xmlNamePattern accepts element names the XML and YML writers can emit
// as tags: a letter or underscore, then letters, digits, '_', '-' or '.'.
var xmlNamePattern = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_.-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("xmlname", func(fl validator.FieldLevel) bool {
		return xmlNamePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// LoadProfiles reads export profiles from a YAML, TOML or JSON file.
func LoadProfiles(path string) (*Profiles, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}
	return decodeProfiles(v)
}

// ParseProfiles reads profiles from an in-memory document of the given
// type ("yaml", "toml", "json").
func ParseProfiles(configType string, data string) (*Profiles, error) {
	v := viper.New()
	v.SetConfigType(configType)
	if err := v.ReadConfig(strings.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	return decodeProfiles(v)
}

func decodeProfiles(v *viper.Viper) (*Profiles, error) {
	var f profilesFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}

	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return nil, fmt.Errorf("invalid profiles: %s", strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("invalid profiles: %w", err)
	}

	p := &Profiles{byName: make(map[string]int, len(f.Profiles))}
	for _, prof := range f.Profiles {
		if _, dup := p.byName[prof.Name]; dup {
			return nil, fmt.Errorf("duplicate profile %q", prof.Name)
		}
		p.byName[prof.Name] = len(p.list)
		p.list = append(p.list, prof)
	}
	return p, nil
}
