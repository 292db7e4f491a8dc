// Package roster holds the clinic's deploy-time list of physicians.
package roster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

var ErrEmptyRoster = errors.New("roster has no physicians")

type Physician struct {
	Name  string `mapstructure:"name" json:"name"`
	Image string `mapstructure:"image" json:"image"`
}

// Roster is an immutable list of physicians. It satisfies
// appointment.PhysicianDirectory.
type Roster struct {
	physicians []Physician
}

// Default is the roster used when no ROSTER_FILE is configured.
func Default() *Roster {
	r, _ := New([]Physician{
		{Name: "Dr. Martin", Image: "/assets/images/dr-martin.png"},
		{Name: "Dr. Bernard", Image: "/assets/images/dr-bernard.png"},
		{Name: "Dr. Dubois", Image: "/assets/images/dr-dubois.png"},
		{Name: "Dr. Laurent", Image: "/assets/images/dr-laurent.png"},
		{Name: "Dr. Moreau", Image: "/assets/images/dr-moreau.png"},
	})
	return r
}

// New builds a roster, trimming names and dropping blanks and duplicates.
func New(physicians []Physician) (*Roster, error) {
	cleaned := lo.FilterMap(physicians, func(p Physician, _ int) (Physician, bool) {
		p.Name = strings.TrimSpace(p.Name)
		return p, p.Name != ""
	})
	cleaned = lo.UniqBy(cleaned, func(p Physician) string { return p.Name })
	if len(cleaned) == 0 {
		return nil, ErrEmptyRoster
	}
	return &Roster{physicians: cleaned}, nil
}

// LoadFile reads a roster from a yaml, json or toml file with a top-level
// "physicians" list.
func LoadFile(path string) (*Roster, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}

	var file struct {
		Physicians []Physician `mapstructure:"physicians"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode roster file: %w", err)
	}

	r, err := New(file.Physicians)
	if err != nil {
		return nil, fmt.Errorf("roster file %s: %w", path, err)
	}
	return r, nil
}

// Load returns the roster from path, or the default roster when path is empty.
func Load(path string) (*Roster, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

func (r *Roster) All() []Physician {
	out := make([]Physician, len(r.physicians))
	copy(out, r.physicians)
	return out
}

func (r *Roster) Lookup(name string) (Physician, bool) {
	name = strings.TrimSpace(name)
	return lo.Find(r.physicians, func(p Physician) bool { return p.Name == name })
}

func (r *Roster) Contains(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

func (r *Roster) Names() []string {
	return lo.Map(r.physicians, func(p Physician, _ int) string { return p.Name })
}
