package seed

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/landmarks.yaml
var fixtureFS embed.FS

// FixtureUser is a named demo account.
type FixtureUser struct {
	Name   string `yaml:"name"`
	Email  string `yaml:"email"`
	Avatar string `yaml:"avatar"`
}

// FixturePost is the curated post written at a landmark.
type FixturePost struct {
	Title   string   `yaml:"title"`
	Content string   `yaml:"content"`
	Image   string   `yaml:"image"`
	Tags    []string `yaml:"tags"`
}

// Landmark is a well-known place with coordinates and its prefecture.
type Landmark struct {
	Name       string      `yaml:"name"`
	Prefecture string      `yaml:"prefecture"`
	Latitude   float64     `yaml:"latitude"`
	Longitude  float64     `yaml:"longitude"`
	Post       FixturePost `yaml:"post"`
}

// Fixtures is the decoded fixture file.
type Fixtures struct {
	Users     []FixtureUser `yaml:"users"`
	Landmarks []Landmark    `yaml:"landmarks"`
}

// LoadFixtures decodes the embedded fixture file.
func LoadFixtures() (*Fixtures, error) {
	raw, err := fixtureFS.ReadFile("fixtures/landmarks.yaml")
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(raw)
}

// ParseFixtures decodes and checks fixture YAML.
func ParseFixtures(raw []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	if len(f.Users) == 0 {
		return nil, errors.New("fixtures define no users")
	}
	for i, l := range f.Landmarks {
		if strings.TrimSpace(l.Name) == "" || strings.TrimSpace(l.Post.Title) == "" {
			return nil, fmt.Errorf("landmark %d: name and post title are required", i)
		}
		if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
			return nil, fmt.Errorf("landmark %q: coordinates out of range", l.Name)
		}
	}
	return &f, nil
}
