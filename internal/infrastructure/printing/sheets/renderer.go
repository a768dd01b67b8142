package sheets

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/rpgsheets/backend/internal/domain/generation"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// layoutFiles maps each document type to its body template.
var layoutFiles = map[generation.DocumentType]string{
	generation.DocumentTypeCharacterSheet:    "templates/character_sheet.html",
	generation.DocumentTypeNPCSheet:          "templates/npc_sheet.html",
	generation.DocumentTypeReferenceCard:     "templates/reference_card.html",
	generation.DocumentTypeMovesGuide:        "templates/moves_guide.html",
	generation.DocumentTypeConditionsTracker: "templates/conditions_tracker.html",
	generation.DocumentTypeSessionNotes:      "templates/session_notes.html",
}

var funcMap = template.FuncMap{
	"seq": func(n int) []int {
		return make([]int, max(n, 0))
	},
}

// page is the data handed to the shared layout
type page struct {
	Sheet Sheet
	CSS   template.CSS
}

// Renderer turns characters into HTML documents. It is safe for concurrent
// use.
type Renderer struct {
	layouts map[generation.DocumentType]*template.Template
	logger  *zap.Logger
}

// NewRenderer parses the embedded layouts
func NewRenderer(logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	layouts := make(map[generation.DocumentType]*template.Template, len(layoutFiles))
	for docType, file := range layoutFiles {
		tmpl, err := template.New("sheet").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", file)
		if err != nil {
			return nil, fmt.Errorf("parse layout for %s: %w", docType, err)
		}
		layouts[docType] = tmpl
	}

	return &Renderer{layouts: layouts, logger: logger}, nil
}

// Render renders the character sheet for character in the given system.
// It never fails; missing data is rendered with defaults.
func (r *Renderer) Render(character *generation.Character, systemCode generation.SystemCode) string {
	return r.RenderDocument(character, systemCode, generation.DocumentTypeCharacterSheet, generation.StyleClassic)
}

// RenderDocument renders any document type. Unknown document types use the
// character sheet layout; unknown systems use the generic sheet.
func (r *Renderer) RenderDocument(
	character *generation.Character,
	systemCode generation.SystemCode,
	docType generation.DocumentType,
	style generation.Style,
) string {
	if character == nil {
		character = &generation.Character{}
	}
	if systemCode == "" {
		systemCode = character.SystemCode
	}
	if !docType.IsValid() {
		docType = generation.DocumentTypeCharacterSheet
	}

	sheet := r.buildSheet(character, systemCode)
	sheet.DocumentType = docType.DisplayName()
	sheet.Title = sheet.Name + " - " + sheet.DocumentType

	tmpl, ok := r.layouts[docType]
	if !ok {
		return fallbackDocument(sheet)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", page{Sheet: sheet, CSS: cssFor(style)}); err != nil {
		r.logger.Error("template execution failed, using fallback document",
			zap.String("system", systemCode.String()),
			zap.String("document_type", docType.String()),
			zap.Error(err))
		return fallbackDocument(sheet)
	}
	return buf.String()
}

// buildSheet dispatches to the system builder. A panicking builder is
// replaced by the bare base sheet, which has no stats or tracks.
func (r *Renderer) buildSheet(character *generation.Character, systemCode generation.SystemCode) (sheet Sheet) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("system sheet builder panicked",
				zap.String("system", systemCode.String()),
				zap.Any("panic", rec))
			sheet = baseSheet(character, "Generic")
			sheet.HarmLabel = "Harm"
			sheet.HarmTrack = []bool{}
			sheet.XPTrack = []bool{}
		}
	}()
	return lookupSystem(systemCode)(character)
}

// fallbackDocument is a minimal page built without templates.
func fallbackDocument(sheet Sheet) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"UTF-8\"><title>")
	b.WriteString(html.EscapeString(sheet.Title))
	b.WriteString("</title></head><body><h1>")
	b.WriteString(html.EscapeString(sheet.Name))
	b.WriteString("</h1><ul>")
	for _, s := range sheet.Stats {
		fmt.Fprintf(&b, "<li>%s: %d</li>", html.EscapeString(s.Label), s.Value)
	}
	b.WriteString("</ul><p>")
	b.WriteString(html.EscapeString(sheet.Notes))
	b.WriteString("</p></body></html>")
	return b.String()
}
