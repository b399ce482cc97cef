package feed

// GoogleNamespace is the Google Base namespace bound to the g: prefix.
const GoogleNamespace = "http://base.google.com/ns/1.0"

// Channel describes the storefront in feed headers.
type Channel struct {
	Title   string
	Link    string
	Company string
}

// writeXML writes a Google Shopping RSS feed and returns the number of items.
func writeXML(path string, ch Channel, m *Mapping, records []Record) (int, error) {
	w, err := createLineWriter(path, EncodingUTF8)
	if err != nil {
		return 0, err
	}

	w.Line(`<?xml version="1.0"?>`)
	w.Line(`<rss version="2.0" xmlns:g="` + GoogleNamespace + `">`)
	w.Line("<channel>")
	w.Line("<title>" + xmlText(ch.Title) + "</title>")
	w.Line("<link>" + xmlText(ch.Link) + "</link>")
	w.Line("<description></description>")

	entries := m.Entries()
	for i := range records {
		w.Line("<item>")
		for _, e := range entries {
			w.Linef("<g:%s>%s</g:%s>", e.Name, xmlText(Resolve(e.Binding, &records[i])), e.Name)
		}
		w.Line("</item>")
	}

	w.Line("</channel>")
	w.Line("</rss>")

	if err := w.Close(); err != nil {
		return 0, err
	}
	return len(records), nil
}
