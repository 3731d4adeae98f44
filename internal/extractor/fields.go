package extractor

import "github.com/maltedev/amazon-offer-scraper/internal/models"

// Field extractors never fail: a missing element or an automation error on a
// single field yields the default for that field.

// Text returns the cleaned text of the first match, or models.NotAvailable.
func Text(root Node, selector string) string {
	el, err := root.QuerySelector(selector)
	if err != nil || el == nil {
		return models.NotAvailable
	}
	text, err := el.TextContent()
	if err != nil || text == "" {
		return models.NotAvailable
	}
	return CleanText(text)
}

// Images returns the image source of every match in document order.
func Images(root Node, selector string) []string {
	images := make([]string, 0)

	els, err := root.QuerySelectorAll(selector)
	if err != nil {
		return images
	}
	for _, el := range els {
		src, err := el.ImageSource()
		if err != nil {
			continue
		}
		images = append(images, src)
	}

	return images
}

// Table maps every row's th text to its td text. Rows where either side is
// empty after cleaning are left out; a repeated label keeps the last value.
func Table(root Node, rowSelector string) map[string]string {
	data := make(map[string]string)

	rows, err := root.QuerySelectorAll(rowSelector)
	if err != nil {
		return data
	}
	for _, row := range rows {
		key := childText(row, "th")
		value := childText(row, "td")
		if key != "" && value != "" {
			data[key] = value
		}
	}

	return data
}

// childText is the cleaned text of the first match under n, or "".
func childText(n Node, selector string) string {
	return CleanText(rawText(n, selector))
}

// rawText is the uncleaned text of the first match under n, or "".
func rawText(n Node, selector string) string {
	el, err := n.QuerySelector(selector)
	if err != nil || el == nil {
		return ""
	}
	text, err := el.TextContent()
	if err != nil {
		return ""
	}
	return text
}
