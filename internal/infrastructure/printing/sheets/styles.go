package sheets

import (
	"html/template"

	"github.com/rpgsheets/backend/internal/domain/generation"
)

const baseCSS = `
@page { margin: 0; }
* { box-sizing: border-box; }
body { font-family: "Helvetica Neue", Arial, sans-serif; font-size: 11pt; margin: 0; color: #222; }
h1 { font-size: 22pt; margin: 0; }
h2 { font-size: 11pt; text-transform: uppercase; letter-spacing: .05em; margin: 12px 0 4px; }
h3 { font-size: 10pt; margin: 6px 0 2px; }
p { margin: 0 0 4px; white-space: pre-wrap; }
ul { margin: 0; padding-left: 18px; }
.sheet-header { border-bottom: 2px solid #222; padding-bottom: 6px; margin-bottom: 10px; }
.meta span { margin-right: 12px; font-size: 9pt; text-transform: uppercase; }
.stats { display: flex; flex-wrap: wrap; gap: 8px; }
.stat { border: 2px solid #222; border-radius: 6px; width: 80px; text-align: center; padding: 4px; }
.stat-value { display: block; font-size: 20pt; font-weight: bold; }
.stat-label { display: block; font-size: 8pt; text-transform: uppercase; }
.columns { display: flex; gap: 16px; }
.columns > div { flex: 1; }
.box { display: inline-block; width: 14px; height: 14px; border: 1px solid #222; margin-right: 3px; }
.box.filled { background: #222; }
.count { margin-left: 6px; font-weight: bold; }
.move { break-inside: avoid; }
.empty { color: #888; font-style: italic; }
.conditions { width: 100%; border-collapse: collapse; }
.conditions td, .conditions th { border: 1px solid #999; padding: 4px; text-align: left; }
.line { border-bottom: 1px solid #bbb; height: 22px; }
.card { border: 2px solid #222; border-radius: 8px; padding: 10px; max-width: 120mm; }
.compact li { display: inline; margin-right: 10px; }
`

// styleCSS holds the per-style additions appended to baseCSS.
var styleCSS = map[generation.Style]string{
	generation.StyleClassic: `
body { font-family: Georgia, "Times New Roman", serif; }
.sheet-header { background: #3b1f2b; color: #f6efe6; padding: 10px; }
.stat { background: #f6efe6; }
`,
	generation.StyleMinimal: `
.sheet-header { border-bottom-width: 1px; }
.stat { border-width: 1px; border-radius: 0; }
`,
	generation.StylePrinterFriendly: `
* { background: #fff !important; color: #000 !important; }
.box.filled { background: #000 !important; }
`,
}

// cssFor returns the complete stylesheet for style. The content is static and
// never contains user input, so it is marked trusted.
func cssFor(style generation.Style) template.CSS {
	extra, ok := styleCSS[style]
	if !ok {
		extra = styleCSS[generation.StyleClassic]
	}
	return template.CSS(baseCSS + extra)
}
