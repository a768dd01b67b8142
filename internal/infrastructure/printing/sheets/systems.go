package sheets

import (
	"slices"
	"strings"

	"github.com/rpgsheets/backend/internal/domain/generation"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// systemRenderer builds the view model for one game system. It must accept
// any partially filled character.
type systemRenderer func(c *generation.Character) Sheet

// statSystem describes a system whose sheet is a fixed list of stats plus a
// harm and experience track.
type statSystem struct {
	name      string
	stats     []string
	harmLabel string
	harmMax   int
	xpMax     int
	fields    []string
}

// systems is the closed set of supported game systems.
var systems = map[generation.SystemCode]systemRenderer{
	generation.SystemMonsterhearts: statSystem{
		name:      "Monsterhearts",
		stats:     []string{"hot", "cold", "volatile", "dark"},
		harmLabel: "Harm",
		harmMax:   4,
		xpMax:     5,
		fields:    []string{"darkest_self", "sex_move"},
	}.render,
	generation.SystemApocalypseWorld: statSystem{
		name:      "Apocalypse World",
		stats:     []string{"cool", "hard", "hot", "sharp", "weird"},
		harmLabel: "Harm Countdown",
		harmMax:   6,
		xpMax:     5,
		fields:    []string{"gear", "barter"},
	}.render,
	generation.SystemDungeonWorld: statSystem{
		name:      "Dungeon World",
		stats:     []string{"str", "dex", "con", "int", "wis", "cha"},
		harmLabel: "Damage Taken",
		harmMax:   10,
		xpMax:     8,
		fields:    []string{"alignment", "bonds", "gear"},
	}.render,
	generation.SystemMasks: statSystem{
		name:      "Masks",
		stats:     []string{"danger", "freak", "savior", "superior", "mundane"},
		harmLabel: "Conditions Marked",
		harmMax:   5,
		xpMax:     5,
		fields:    []string{"hero_name", "real_name", "moment_of_truth"},
	}.render,
	generation.SystemUrbanShadows: statSystem{
		name:      "Urban Shadows",
		stats:     []string{"blood", "heart", "mind", "spirit"},
		harmLabel: "Harm",
		harmMax:   5,
		xpMax:     5,
		fields:    []string{"circle", "corruption"},
	}.render,
}

// lookupSystem returns the renderer for code, falling back to genericSheet
func lookupSystem(code generation.SystemCode) systemRenderer {
	if r, ok := systems[generation.SystemCode(strings.ToLower(strings.TrimSpace(string(code))))]; ok {
		return r
	}
	return genericSheet
}

// SupportedSystems returns the system codes with a dedicated layout
func SupportedSystems() []generation.SystemCode {
	codes := make([]generation.SystemCode, 0, len(systems))
	for code := range systems {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

func (s statSystem) render(c *generation.Character) Sheet {
	sheet := baseSheet(c, s.name)

	for _, key := range s.stats {
		sheet.Stats = append(sheet.Stats, Stat{Key: key, Label: labelFor(key), Value: c.Attribute(key)})
	}
	sheet.HarmLabel = s.harmLabel
	sheet.HarmTrack = track(s.harmMax, sheet.Harm)
	sheet.XPTrack = track(s.xpMax, sheet.Experience)

	for _, key := range s.fields {
		sheet.Fields = append(sheet.Fields, Field{Label: labelFor(key), Value: textOr(c.Extra[key])})
	}
	sheet.Fields = append(sheet.Fields, extraFields(c.Extra, s.fields...)...)
	return sheet
}

// genericSheet lists every attribute the character has, alphabetically.
func genericSheet(c *generation.Character) Sheet {
	sheet := baseSheet(c, "Generic")

	keys := make([]string, 0, len(c.Attributes))
	for k := range c.Attributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, key := range keys {
		sheet.Stats = append(sheet.Stats, Stat{Key: key, Label: labelFor(key), Value: c.Attributes[key]})
	}
	sheet.HarmLabel = "Harm"
	sheet.HarmTrack = track(genericTrackSize(sheet.Harm), sheet.Harm)
	sheet.XPTrack = track(genericTrackSize(sheet.Experience), sheet.Experience)
	sheet.Fields = extraFields(c.Extra)
	return sheet
}

// genericTrackSize fits the row to the value, within [minGenericTrack, maxTrack]
func genericTrackSize(v int) int {
	return min(max(v, minGenericTrack), maxTrack)
}

func baseSheet(c *generation.Character, systemName string) Sheet {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = DefaultName
	}
	return Sheet{
		SystemName: systemName,
		Name:       name,
		Playbook:   textOr(c.Playbook),
		Stats:      []Stat{},
		Skills:     nonEmpty(c.Skills),
		Moves:      namedMoves(c.Moves),
		Conditions: nonEmpty(c.Conditions),
		Harm:       max(c.Harm, 0),
		Experience: max(c.Experience, 0),
		Look:       textOr(c.Look),
		Origin:     textOr(c.Origin),
		Notes:      textOr(c.Notes),
		Fields:     []Field{},
	}
}

// abbreviations are shown upper-cased rather than title-cased
var abbreviations = []string{"str", "dex", "con", "int", "wis", "cha", "xp", "hp", "npc"}

// labelFor turns an attribute key such as "hero_name" into "Hero Name".
func labelFor(key string) string {
	key = strings.TrimSpace(key)
	if slices.Contains(abbreviations, strings.ToLower(key)) {
		return strings.ToUpper(key)
	}
	// Casers keep state and are not safe to share between goroutines.
	return cases.Title(language.English).String(strings.NewReplacer("_", " ", "-", " ").Replace(key))
}
