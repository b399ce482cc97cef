package feed

import (
	"strconv"
	"time"

	"github.com/dukerupert/feedgen/internal/domain"
)

// YML constants. Prices are exported in roubles at rate 1.
const (
	ymlCurrency   = "RUB"
	ymlDateLayout = "2006-01-02 15:04"
)

// ymlOptions carries the YML-only settings of one export.
type ymlOptions struct {
	Encoding    string
	GeneratedAt time.Time
	Sections    []domain.Section
}

// writeYML writes a Yandex Market catalog and returns the number of offers.
func writeYML(path string, ch Channel, opts ymlOptions, m *Mapping, records []Record) (int, error) {
	w, err := createLineWriter(path, opts.Encoding)
	if err != nil {
		return 0, err
	}

	company := ch.Company
	if company == "" {
		company = ch.Title
	}

	w.Line(`<?xml version="1.0" encoding="` + encodingLabel(opts.Encoding) + `"?>`)
	w.Line(`<yml_catalog date="` + opts.GeneratedAt.Format(ymlDateLayout) + `">`)
	w.Line("<shop>")
	w.Line("<name>" + xmlText(ch.Title) + "</name>")
	w.Line("<company>" + xmlText(company) + "</company>")
	w.Line("<url>" + xmlText(ch.Link) + "</url>")

	w.Line("<currencies>")
	w.Line(`<currency id="` + ymlCurrency + `" rate="1"/>`)
	w.Line("</currencies>")

	w.Line("<categories>")
	for _, line := range categoryLines(opts.Sections) {
		w.Line(line)
	}
	w.Line("</categories>")

	w.Line("<offers>")
	entries := m.Entries()
	for i := range records {
		rec := &records[i]
		w.Line(`<offer id="` + strconv.FormatInt(rec.ID, 10) + `" available="` + rec.AvailabilityLabel(FormatYML) + `">`)
		for _, e := range entries {
			w.Linef("<%s>%s</%s>", e.Name, xmlText(Resolve(e.Binding, rec)), e.Name)
		}
		w.Line("</offer>")
	}
	w.Line("</offers>")

	w.Line("</shop>")
	w.Line("</yml_catalog>")

	if err := w.Close(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// categoryLines renders the flattened section list. A parentId attribute is
// written only when the parent is itself part of the list.
func categoryLines(sections []domain.Section) []string {
	known := make(map[int64]bool, len(sections))
	for _, s := range sections {
		known[s.ID] = true
	}

	lines := make([]string, 0, len(sections))
	for _, s := range sections {
		id := strconv.FormatInt(s.ID, 10)
		if s.ParentID != nil && known[*s.ParentID] && *s.ParentID != s.ID {
			lines = append(lines, `<category id="`+id+`" parentId="`+strconv.FormatInt(*s.ParentID, 10)+`">`+xmlText(s.Name)+`</category>`)
			continue
		}
		lines = append(lines, `<category id="`+id+`">`+xmlText(s.Name)+`</category>`)
	}
	return lines
}
