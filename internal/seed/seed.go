// Package seed loads the initial sources and topic presets from YAML and
// upserts them, so it can be applied any number of times.
package seed

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/shorts-hunter/internal/keywords"
	"github.com/deusflow/shorts-hunter/internal/storage"
)

type File struct {
	Sources      []Source `yaml:"sources"`
	Presets      []Preset `yaml:"presets"`
	ActivePreset string   `yaml:"activePreset"`
}

type Source struct {
	SourceID    string `yaml:"sourceId"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	URL         string `yaml:"url"`
	Enabled     bool   `yaml:"enabled"`
	Weight      int    `yaml:"weight"`
	PresetSlugs string `yaml:"presetSlugs"`
}

type Preset struct {
	Slug          string   `yaml:"slug"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	DefaultAITopN int      `yaml:"defaultAiTopN"`
	Keywords      Keywords `yaml:"keywords"`
}

type Keywords struct {
	Change Terms `yaml:"change"`
	Life   Terms `yaml:"life"`
	Noise  Terms `yaml:"noise"`
}

// Terms is a YAML mapping of term to weight whose order is kept.
type Terms []keywords.Term

func (t *Terms) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: keyword group must be a mapping of term to weight", n.Line)
	}
	out := make(Terms, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		w, err := strconv.Atoi(val.Value)
		if err != nil {
			return fmt.Errorf("line %d: weight of %q: %w", val.Line, key.Value, err)
		}
		out = append(out, keywords.Term{Term: key.Value, Weight: w})
	}
	*t = out
	return nil
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &f, nil
}

type Store interface {
	UpsertSource(ctx context.Context, src *storage.Source) error
	UpsertPreset(ctx context.Context, p *storage.Preset, kws []storage.Keyword) error
	GetPresetBySlug(ctx context.Context, slug string) (*storage.Preset, error)
	SetActivePresetID(ctx context.Context, presetID string) error
}

var _ Store = (*storage.Store)(nil)

type Result struct {
	Sources        int
	Presets        int
	Keywords       int
	PresetIDs      []string
	ActivePresetID string
}

// Apply upserts every source and preset of f and selects its active preset.
func Apply(ctx context.Context, store Store, f *File) (*Result, error) {
	res := &Result{}
	for _, s := range f.Sources {
		src := storage.Source{
			SourceID:    s.SourceID,
			Name:        s.Name,
			Type:        s.Type,
			URL:         s.URL,
			Enabled:     s.Enabled,
			Weight:      s.Weight,
			PresetSlugs: s.PresetSlugs,
		}
		if err := store.UpsertSource(ctx, &src); err != nil {
			return res, fmt.Errorf("seed source %s: %w", s.SourceID, err)
		}
		res.Sources++
	}

	for _, p := range f.Presets {
		preset := storage.Preset{
			Slug:          p.Slug,
			Name:          p.Name,
			Description:   p.Description,
			Enabled:       true,
			DefaultAITopN: p.DefaultAITopN,
		}
		kws := p.Keywords.rows()
		if err := store.UpsertPreset(ctx, &preset, kws); err != nil {
			return res, fmt.Errorf("seed preset %s: %w", p.Slug, err)
		}
		res.Presets++
		res.Keywords += len(kws)
		res.PresetIDs = append(res.PresetIDs, preset.ID)
	}

	if f.ActivePreset != "" {
		p, err := store.GetPresetBySlug(ctx, f.ActivePreset)
		if err != nil {
			return res, fmt.Errorf("active preset %s: %w", f.ActivePreset, err)
		}
		if err := store.SetActivePresetID(ctx, p.ID); err != nil {
			return res, err
		}
		res.ActivePresetID = p.ID
	}
	return res, nil
}

func (k Keywords) rows() []storage.Keyword {
	var out []storage.Keyword
	for _, g := range []struct {
		name  string
		terms Terms
	}{
		{keywords.GroupChange, k.Change},
		{keywords.GroupLife, k.Life},
		{keywords.GroupNoise, k.Noise},
	} {
		for i, t := range g.terms {
			out = append(out, storage.Keyword{Group: g.name, Term: t.Term, Weight: t.Weight, Position: i})
		}
	}
	return out
}
