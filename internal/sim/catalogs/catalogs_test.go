package catalogs

import "testing"

func TestLoad_RepoConfigs(t *testing.T) {
	cats, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if got := cats.Blocks.Palette[0]; got != "AIR" {
		t.Fatalf("palette[0]: got %q want AIR", got)
	}
	tnt, ok := cats.Blocks.Defs["TNT"]
	if !ok || !tnt.Explosive {
		t.Fatalf("TNT should be present and explosive: %+v", tnt)
	}
	if !cats.Blocks.Defs["STONE"].Occluding {
		t.Fatalf("STONE should be occluding")
	}
	if cats.Blocks.Defs["GLASS"].Occluding {
		t.Fatalf("GLASS should not be occluding")
	}
	if cats.Blocks.PaletteDigest == "" || cats.Blocks.DefsDigest == "" {
		t.Fatalf("missing digests")
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing_air", "- id: STONE\n  occluding: true\n"},
		{"empty_id", "- id: AIR\n- id: \"\"\n"},
		{"duplicate", "- id: AIR\n- id: STONE\n- id: STONE\n"},
		{"occluding_air", "- id: AIR\n  occluding: true\n"},
		{"bad_drop", "- id: AIR\n- id: STONE\n  drops:\n    - item: COBBLESTONE\n      count: 0\n"},
		{"not_yaml", "{{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.raw)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParse_PaletteOrder(t *testing.T) {
	cats, err := Parse([]byte("- id: STONE\n  occluding: true\n- id: AIR\n- id: DIRT\n  occluding: true\n  item: DIRT_BLOCK\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"AIR", "DIRT", "STONE"}
	for i, id := range want {
		if cats.Blocks.Palette[i] != id || cats.Blocks.Index[id] != uint16(i) {
			t.Fatalf("palette[%d]: got %q want %q", i, cats.Blocks.Palette[i], id)
		}
	}
	if got := cats.Blocks.Defs["DIRT"].ItemID(); got != "DIRT_BLOCK" {
		t.Fatalf("item id: got %q", got)
	}
	if got := cats.Blocks.Defs["STONE"].ItemID(); got != "STONE" {
		t.Fatalf("default item id: got %q", got)
	}
}
