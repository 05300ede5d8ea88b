package extractor

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

func readPDFText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i, err)
		}
		if b.Len() > 0 && text != "" {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
