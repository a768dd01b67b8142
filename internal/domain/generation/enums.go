package generation

// DocumentType is the kind of document generated for a character
type DocumentType string

const (
	DocumentTypeCharacterSheet    DocumentType = "CHARACTER_SHEET"
	DocumentTypeNPCSheet          DocumentType = "NPC_SHEET"
	DocumentTypeReferenceCard     DocumentType = "REFERENCE_CARD"
	DocumentTypeMovesGuide        DocumentType = "MOVES_GUIDE"
	DocumentTypeConditionsTracker DocumentType = "CONDITIONS_TRACKER"
	DocumentTypeSessionNotes      DocumentType = "SESSION_NOTES"
)

// IsValid checks if the DocumentType is a valid value
func (d DocumentType) IsValid() bool {
	switch d {
	case DocumentTypeCharacterSheet, DocumentTypeNPCSheet, DocumentTypeReferenceCard,
		DocumentTypeMovesGuide, DocumentTypeConditionsTracker, DocumentTypeSessionNotes:
		return true
	}
	return false
}

// String returns the string representation of DocumentType
func (d DocumentType) String() string {
	return string(d)
}

// DisplayName returns the human readable title for the document type
func (d DocumentType) DisplayName() string {
	switch d {
	case DocumentTypeCharacterSheet:
		return "Character Sheet"
	case DocumentTypeNPCSheet:
		return "NPC Sheet"
	case DocumentTypeReferenceCard:
		return "Reference Card"
	case DocumentTypeMovesGuide:
		return "Moves Guide"
	case DocumentTypeConditionsTracker:
		return "Conditions Tracker"
	case DocumentTypeSessionNotes:
		return "Session Notes"
	default:
		return string(d)
	}
}

// Slug returns the lowercase, dash separated form used in file names
func (d DocumentType) Slug() string {
	switch d {
	case DocumentTypeCharacterSheet:
		return "character-sheet"
	case DocumentTypeNPCSheet:
		return "npc-sheet"
	case DocumentTypeReferenceCard:
		return "reference-card"
	case DocumentTypeMovesGuide:
		return "moves-guide"
	case DocumentTypeConditionsTracker:
		return "conditions-tracker"
	case DocumentTypeSessionNotes:
		return "session-notes"
	default:
		return "document"
	}
}

// AllDocumentTypes returns all valid DocumentType values
func AllDocumentTypes() []DocumentType {
	return []DocumentType{
		DocumentTypeCharacterSheet, DocumentTypeNPCSheet, DocumentTypeReferenceCard,
		DocumentTypeMovesGuide, DocumentTypeConditionsTracker, DocumentTypeSessionNotes,
	}
}

// PageFormat represents the paper size of the generated document
type PageFormat string

const (
	PageFormatA4     PageFormat = "A4"     // 210mm x 297mm
	PageFormatA5     PageFormat = "A5"     // 148mm x 210mm
	PageFormatLetter PageFormat = "LETTER" // 216mm x 279mm
)

// IsValid checks if the PageFormat is a valid value
func (p PageFormat) IsValid() bool {
	switch p {
	case PageFormatA4, PageFormatA5, PageFormatLetter:
		return true
	}
	return false
}

// String returns the string representation of PageFormat
func (p PageFormat) String() string {
	return string(p)
}

// Dimensions returns the paper dimensions in millimeters (width, height)
func (p PageFormat) Dimensions() (width, height int) {
	switch p {
	case PageFormatA5:
		return 148, 210
	case PageFormatLetter:
		return 216, 279
	default:
		return 210, 297
	}
}

// Orientation represents the page orientation
type Orientation string

const (
	OrientationPortrait  Orientation = "PORTRAIT"
	OrientationLandscape Orientation = "LANDSCAPE"
)

// IsValid checks if the Orientation is a valid value
func (o Orientation) IsValid() bool {
	return o == OrientationPortrait || o == OrientationLandscape
}

// String returns the string representation of Orientation
func (o Orientation) String() string {
	return string(o)
}

// Style selects the visual variant of a template
type Style string

const (
	StyleClassic         Style = "CLASSIC"
	StyleMinimal         Style = "MINIMAL"
	StylePrinterFriendly Style = "PRINTER_FRIENDLY"
)

// IsValid checks if the Style is a valid value
func (s Style) IsValid() bool {
	switch s {
	case StyleClassic, StyleMinimal, StylePrinterFriendly:
		return true
	}
	return false
}

// String returns the string representation of Style
func (s Style) String() string {
	return string(s)
}

// JobStatus represents the status of a generation job
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusComplete   JobStatus = "COMPLETE"
	JobStatusFailed     JobStatus = "FAILED"
)

// transitions is the complete set of legal status edges.
var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusInProgress},
	JobStatusInProgress: {JobStatusComplete, JobStatusFailed},
	JobStatusFailed:     {JobStatusPending},
}

// IsValid checks if the JobStatus is a valid value
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusInProgress, JobStatusComplete, JobStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the generation attempt has finished
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// CanTransitionTo checks if the status can transition to the target status
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}
