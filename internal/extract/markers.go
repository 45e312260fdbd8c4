package extract

import (
	"strings"

	"github.com/ppiankov/patentscan/internal/model"
)

// NotFoundSentinel is the entire page text the register serves for unknown numbers
const NotFoundSentinel = "Документ с данным номером отсутствует"

// Marker tokens as they appear in register pages
const (
	markerFilingDate    = "(21)(22)"
	markerCitations     = "(56)"
	markerAuthors       = "(72)"
	markerOwner         = "(73)"
	markerAbstract      = "(57)"
	markerSources       = "Источники информации"
	markerClaims        = "Формула изобретения"
	markerNotifications = "ИЗВЕЩЕНИЯ"
)

// noise lists paragraph texts that carry no body content
var noise = map[string]struct{}{
	"":         {},
	" ":        {},
	"  ":       {},
	"\n":       {},
	"\n,":      {},
	"\n, ":     {},
	"\n\n":     {},
	"\n\n,":    {},
	"\n\n, ":   {},
	"\n\n\n":   {},
	"\n\n\n,":  {},
	"\n\n\n ":  {},
	"\n\n\n, ": {},
	"\n\n\n\n": {},
}

type column int

const (
	leftColumn  column = iota // filing date, citations
	rightColumn               // authors, owner
)

// bibRule binds a bibliography marker to the field it fills. apply receives
// the text of the first <b> inside the matched paragraph.
type bibRule struct {
	field  string
	marker string
	column column
	apply  func(bold string, rec *model.PatentRecord)
}

var bibRules = []bibRule{
	{
		field:  "date",
		marker: markerFilingDate,
		column: leftColumn,
		apply: func(bold string, rec *model.PatentRecord) {
			parts := strings.Split(bold, ", ")
			rec.FilingDate = strings.TrimSpace(parts[len(parts)-1])
		},
	},
	{
		field:  "quotes",
		marker: markerCitations,
		column: leftColumn,
		apply: func(bold string, rec *model.PatentRecord) {
			rec.CitedDocuments = splitTrim(bold, ". ")
		},
	},
	{
		field:  "authors",
		marker: markerAuthors,
		column: rightColumn,
		apply: func(bold string, rec *model.PatentRecord) {
			rec.Authors = splitTrim(dropFirst(bold), ",")
		},
	},
	{
		field:  "patent_owner",
		marker: markerOwner,
		column: rightColumn,
		apply: func(bold string, rec *model.PatentRecord) {
			rec.PatentOwner = strings.TrimSpace(dropFirst(bold))
		},
	},
}

// splitTrim splits s on sep, trims each piece and drops empty ones
func splitTrim(s, sep string) []string {
	out := []string{}
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dropFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return ""
	}
	return string(r[1:])
}

func dropLast(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return ""
	}
	return string(r[:len(r)-1])
}

// unwrap strips the first and last rune, which the register renders as
// markup artifacts around list entries.
func unwrap(s string) string {
	r := []rune(s)
	if len(r) < 2 {
		return ""
	}
	return string(r[1 : len(r)-1])
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isNoise(s string) bool {
	_, ok := noise[s]
	return ok
}

// indexContaining returns the first index in texts[from:to] containing marker, or -1
func indexContaining(texts []string, marker string, from, to int) int {
	for i := from; i < to && i < len(texts); i++ {
		if strings.Contains(texts[i], marker) {
			return i
		}
	}
	return -1
}
