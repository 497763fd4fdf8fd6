package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

type Catalogs struct {
	Blocks BlockCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID        string     `yaml:"id" json:"id"`
	Occluding bool       `yaml:"occluding" json:"occluding"`
	Explosive bool       `yaml:"explosive,omitempty" json:"explosive,omitempty"`
	Item      string     `yaml:"item,omitempty" json:"item,omitempty"`
	Drops     []DropSpec `yaml:"drops,omitempty" json:"drops,omitempty"`
}

type DropSpec struct {
	Item  string `yaml:"item" json:"item"`
	Count int    `yaml:"count" json:"count"`
}

// ItemID returns the item that represents the block material.
func (d BlockDef) ItemID() string {
	if d.Item != "" {
		return d.Item
	}
	return d.ID
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadBlocks(filepath.Join(configDir, "blocks.yaml"), &c.Blocks); err != nil {
		return nil, err
	}
	return &c, nil
}

// Parse builds a catalog from raw blocks.yaml content.
func Parse(raw []byte) (*Catalogs, error) {
	var c Catalogs
	if err := parseBlocks(raw, &c.Blocks); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return parseBlocks(raw, out)
}

func parseBlocks(raw []byte, out *BlockCatalog) error {
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.yaml: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.yaml: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("blocks.yaml: duplicate id %q", d.ID)
		}
		for _, dr := range d.Drops {
			if dr.Item == "" || dr.Count <= 0 {
				return fmt.Errorf("blocks.yaml: %s: bad drop %+v", d.ID, dr)
			}
		}
		out.Defs[d.ID] = d
	}

	// Ensure AIR exists and is palette id 0.
	air, ok := out.Defs["AIR"]
	if !ok {
		return fmt.Errorf("blocks.yaml: missing AIR")
	}
	if air.Occluding {
		return fmt.Errorf("blocks.yaml: AIR must not be occluding")
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		if id != "AIR" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	ids = append([]string{"AIR"}, ids...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}
