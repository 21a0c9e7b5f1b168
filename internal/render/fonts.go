package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

// Font family names understood by Fonts. Anything else falls back to Sans.
const (
	FamilySans   = "sans"
	FamilyMono   = "mono"
	FamilyBold   = "bold"
	FamilyItalic = "italic"
)

var familyAliases = map[string]string{
	"":           FamilySans,
	"sans-serif": FamilySans,
	"arial":      FamilySans,
	"helvetica":  FamilySans,
	"serif":      FamilySans,
	"monospace":  FamilyMono,
	"courier":    FamilyMono,
}

type faceKey struct {
	family string
	size   float64
}

// Fonts resolves font families to faces backed by the embedded Go fonts.
type Fonts struct {
	mu      sync.Mutex
	sources map[string]*text.FontSource
	faces   map[faceKey]text.Face
}

// NewFonts parses the embedded font set.
func NewFonts() (*Fonts, error) {
	data := map[string][]byte{
		FamilySans:   goregular.TTF,
		FamilyMono:   gomono.TTF,
		FamilyBold:   gobold.TTF,
		FamilyItalic: goitalic.TTF,
	}
	f := &Fonts{
		sources: make(map[string]*text.FontSource, len(data)),
		faces:   make(map[faceKey]text.Face),
	}
	for family, ttf := range data {
		src, err := text.NewFontSource(ttf)
		if err != nil {
			return nil, fmt.Errorf("render: load font %s: %w", family, err)
		}
		f.sources[family] = src
	}
	return f, nil
}

// Resolve normalises a family name to one of the embedded families.
func Resolve(family string) string {
	key := strings.ToLower(strings.TrimSpace(family))
	if alias, ok := familyAliases[key]; ok {
		return alias
	}
	switch key {
	case FamilySans, FamilyMono, FamilyBold, FamilyItalic:
		return key
	}
	return FamilySans
}

// Face returns a cached face for family at size.
func (f *Fonts) Face(family string, size float64) text.Face {
	key := faceKey{family: Resolve(family), size: size}
	f.mu.Lock()
	defer f.mu.Unlock()
	if face, ok := f.faces[key]; ok {
		return face
	}
	face := f.sources[key.family].Face(size)
	f.faces[key] = face
	return face
}
