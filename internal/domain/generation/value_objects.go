package generation

import "github.com/rpgsheets/backend/internal/domain/shared"

// MaxMarginMM is the largest accepted page margin
const MaxMarginMM = 50

// Margins represents the page margins in millimeters
type Margins struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// NewMargins creates a new Margins value object
func NewMargins(top, right, bottom, left int) (Margins, error) {
	m := Margins{Top: top, Right: right, Bottom: bottom, Left: left}
	if err := m.Validate(); err != nil {
		return Margins{}, err
	}
	return m, nil
}

// DefaultMargins returns the default page margins
func DefaultMargins() Margins {
	return Margins{Top: 10, Right: 10, Bottom: 10, Left: 10}
}

// Validate checks the margins are within range
func (m Margins) Validate() error {
	if m.Top < 0 || m.Right < 0 || m.Bottom < 0 || m.Left < 0 {
		return shared.NewDomainError(shared.CodeValidation, "Margins cannot be negative")
	}
	if m.Top > MaxMarginMM || m.Right > MaxMarginMM || m.Bottom > MaxMarginMM || m.Left > MaxMarginMM {
		return shared.NewDomainError(shared.CodeValidation, "Margins cannot exceed 50mm")
	}
	return nil
}

// IsZero returns true if all margins are zero
func (m Margins) IsZero() bool {
	return m.Top == 0 && m.Right == 0 && m.Bottom == 0 && m.Left == 0
}

// GenerationOptions controls how a document is laid out. Options are fixed at
// job creation and never change afterwards.
type GenerationOptions struct {
	Format          PageFormat  `json:"format"`
	Orientation     Orientation `json:"orientation"`
	Style           Style       `json:"style"`
	Margins         Margins     `json:"margins"`
	PrintBackground bool        `json:"print_background"`
}

// DefaultGenerationOptions returns A4 portrait classic options
func DefaultGenerationOptions() GenerationOptions {
	return GenerationOptions{
		Format:          PageFormatA4,
		Orientation:     OrientationPortrait,
		Style:           StyleClassic,
		Margins:         DefaultMargins(),
		PrintBackground: true,
	}
}

// WithDefaults fills unset enum fields from DefaultGenerationOptions.
// Margins are left alone since all-zero margins are a legal choice.
func (o GenerationOptions) WithDefaults() GenerationOptions {
	d := DefaultGenerationOptions()
	if o.Format == "" {
		o.Format = d.Format
	}
	if o.Orientation == "" {
		o.Orientation = d.Orientation
	}
	if o.Style == "" {
		o.Style = d.Style
	}
	return o
}

// Validate checks every option is a known value
func (o GenerationOptions) Validate() error {
	if !o.Format.IsValid() {
		return shared.NewDomainError(shared.CodeValidation, "Invalid page format: "+o.Format.String())
	}
	if !o.Orientation.IsValid() {
		return shared.NewDomainError(shared.CodeValidation, "Invalid orientation: "+o.Orientation.String())
	}
	if !o.Style.IsValid() {
		return shared.NewDomainError(shared.CodeValidation, "Invalid style: "+o.Style.String())
	}
	return o.Margins.Validate()
}
