// Package sheets renders characters into self-contained HTML documents.
//
// Each supported game system is an entry in a lookup table that maps the
// system code to a function building the view model for that system. Unknown
// systems use the generic builder. Layouts are html/template files embedded in
// the binary, one per document type, sharing a common page shell with inline
// styles only, so the PDF engine never needs network access.
package sheets
