package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/patentscan/internal/model"
)

// StructuralError reports a page whose shape breaks an extraction assumption
type StructuralError struct {
	Anchor string // Selector or marker that failed
	Detail string
}

func (e *StructuralError) Error() string {
	if e.Detail == "" {
		return "structure: " + e.Anchor
	}
	return fmt.Sprintf("structure: %s: %s", e.Anchor, e.Detail)
}

// Unwrap lets callers match model.ErrStructure with errors.Is
func (e *StructuralError) Unwrap() error {
	return model.ErrStructure
}

func structural(anchor, format string, args ...any) error {
	return &StructuralError{Anchor: anchor, Detail: fmt.Sprintf(format, args...)}
}

// Extractor turns a register page into a PatentRecord.
// It holds no per-document state and is safe for concurrent use.
type Extractor struct {
	rules []bibRule
}

// NewExtractor creates an extractor with the register's marker rules
func NewExtractor() *Extractor {
	return &Extractor{rules: bibRules}
}

// ExtractHTML parses htmlContent and extracts it
func (e *Extractor) ExtractHTML(htmlContent string, number string) model.Outcome {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return model.Failed(number, structural("document", "parse: %v", err))
	}
	return e.Extract(doc, number)
}

// Extract resolves doc to an outcome for number. It never panics and never
// returns an error: every broken assumption becomes a failed outcome.
func (e *Extractor) Extract(doc *goquery.Document, number string) (out model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = model.Failed(number, structural("document", "panic: %v", r))
		}
	}()

	if strings.TrimSpace(doc.Text()) == NotFoundSentinel {
		return model.NotFound(number)
	}

	rec, err := e.extract(doc, number)
	if err != nil {
		return model.Failed(number, err)
	}
	return model.Success(number, rec)
}

func (e *Extractor) extract(doc *goquery.Document, number string) (*model.PatentRecord, error) {
	rec := &model.PatentRecord{
		CitedDocuments:       []string{},
		Authors:              []string{},
		SourcesOfInformation: []string{},
	}

	if err := e.bibliography(doc, rec); err != nil {
		return nil, err
	}
	if err := classifications(doc, rec); err != nil {
		return nil, err
	}
	if err := header(doc, rec); err != nil {
		return nil, err
	}
	if err := body(doc, rec); err != nil {
		return nil, err
	}

	if rec.Number == "" {
		rec.Number = number
	}
	return rec, nil
}

// bibliography fills the optional marker fields from the two columns of table#bib
func (e *Extractor) bibliography(doc *goquery.Document, rec *model.PatentRecord) error {
	bib := doc.Find("table#bib").First()
	if bib.Length() == 0 {
		return structural("table#bib", "not found")
	}
	cells := bib.Find("tr").First().Find("td")
	if cells.Length() < 2 {
		return structural("table#bib tr td", "want 2 columns, got %d", cells.Length())
	}
	columns := [2]*goquery.Selection{
		leftColumn:  cells.Eq(0).Find("p"),
		rightColumn: cells.Eq(1).Find("p"),
	}

	for _, rule := range e.rules {
		matched := columns[rule.column].FilterFunction(func(_ int, p *goquery.Selection) bool {
			return strings.Contains(p.Text(), rule.marker)
		}).First()
		if matched.Length() == 0 {
			continue
		}
		bold := matched.Find("b").First()
		if bold.Length() == 0 {
			return structural("table#bib "+rule.marker, "%s paragraph has no <b>", rule.field)
		}
		rule.apply(bold.Text(), rec)
	}
	return nil
}

// classifications reads the IPC and CPC lists from table.tp. IPC must be a
// list; CPC degrades to the raw row text.
func classifications(doc *goquery.Document, rec *model.PatentRecord) error {
	table := doc.Find("table.tp").First()
	if table.Length() == 0 {
		return structural("table.tp", "not found")
	}
	rows := table.Find("tr")
	if rows.Length() < 6 {
		return structural("table.tp tr", "want at least 6 rows, got %d", rows.Length())
	}

	ipc, ok := classList(rows.Eq(3))
	if !ok {
		return structural("table.tp tr[3] div ul", "IPC list not found")
	}
	rec.IPCClasses = ipc

	cpc, ok := classList(rows.Eq(5))
	if !ok {
		cpc = []string{rows.Eq(5).Text()}
	}
	rec.CPCClasses = cpc
	return nil
}

func classList(row *goquery.Selection) ([]string, bool) {
	list := row.Find("div").First().Find("ul").First()
	if list.Length() == 0 {
		return nil, false
	}
	entries := []string{}
	list.Find("li").Each(func(_ int, li *goquery.Selection) {
		entries = append(entries, collapseSpace(unwrap(li.Text())))
	})
	return entries, true
}

// header reads country, number, document type, title and abstract
func header(doc *goquery.Document, rec *model.PatentRecord) error {
	fields := doc.Find("table.tp").First().Find("div.topfield2")
	if fields.Length() < 3 {
		return structural("table.tp div.topfield2", "want 3 fields, got %d", fields.Length())
	}
	rec.Country = strings.TrimSpace(fields.Eq(0).Text())
	rec.Number = strings.ReplaceAll(unwrap(fields.Eq(1).Text()), " ", "")
	rec.DocumentType = strings.TrimSpace(fields.Eq(2).Text())

	title := doc.Find("p#B542").First()
	if title.Length() == 0 {
		return structural("p#B542", "title not found")
	}
	if tokens := strings.Fields(title.Text()); len(tokens) > 1 {
		rec.Title = strings.Join(tokens[1:], " ")
	}

	abstract := doc.Find("div#Abs").First().Find("p")
	if abstract.Length() < 2 {
		return structural("div#Abs p", "want 2 paragraphs, got %d", abstract.Length())
	}
	rec.Abstract = dropLast(abstract.Eq(1).Text())
	return nil
}

// body segments the paragraphs after the abstract into description,
// sources of information and claims.
func body(doc *goquery.Document, rec *model.PatentRecord) error {
	var paragraphs []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		paragraphs = append(paragraphs, p.Text())
	})

	anchor := indexContaining(paragraphs, markerAbstract, 0, len(paragraphs))
	if anchor < 0 {
		return structural(markerAbstract, "abstract marker not found")
	}

	var text []string
	for i := anchor + 2; i < len(paragraphs); i++ {
		if !isNoise(paragraphs[i]) {
			text = append(text, paragraphs[i])
		}
	}

	claims := indexContaining(text, markerClaims, 0, len(text))
	if claims < 0 {
		return structural(markerClaims, "claims marker not found")
	}
	// Sources only count before the claims and notifications only after;
	// a marker outside its region stays ordinary text
	sources := indexContaining(text, markerSources, 0, claims)
	notifications := indexContaining(text, markerNotifications, claims+1, len(text))

	if sources >= 0 {
		rec.Description = strings.Join(text[:sources], " ")
		rec.SourcesOfInformation = append([]string{}, text[sources+1:claims]...)
	} else {
		rec.Description = strings.Join(text[:claims], " ")
	}

	end := len(text)
	if notifications >= 0 {
		end = notifications
	}
	rec.Claims = strings.Join(text[claims+1:end], " ")
	return nil
}
