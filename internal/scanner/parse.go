package scanner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/resaleradar/marketscan/internal/model"
)

// catalogResponse is the JSON envelope of the search endpoint.
type catalogResponse struct {
	Items []model.RawListing `json:"items"`
}

// parseItems decodes a search response body. JSON is the normal path;
// some catalogs answer with a server-rendered HTML page instead, which
// goes through the goquery fallback.
func parseItems(body []byte, contentType string) ([]model.RawListing, error) {
	trimmed := bytes.TrimSpace(body)
	if strings.Contains(contentType, "text/html") || (len(trimmed) > 0 && trimmed[0] == '<') {
		return parseCatalogHTML(trimmed)
	}

	var resp catalogResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	return resp.Items, nil
}

// parseCatalogHTML extracts listings from a server-rendered catalog
// page. Each feed cell carries the item id and price as data
// attributes; title and photo come from the anchor and image inside.
func parseCatalogHTML(body []byte) ([]model.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse catalog html: %w", err)
	}

	var items []model.RawListing
	doc.Find("[data-item-id]").Each(func(_ int, sel *goquery.Selection) {
		id, _ := sel.Attr("data-item-id")
		if id == "" {
			return
		}

		raw := model.RawListing{ID: id}

		if price, ok := sel.Attr("data-price"); ok {
			raw.Price = price
		}
		if brand, ok := sel.Attr("data-brand"); ok {
			raw.BrandTitle = brand
		}

		anchor := sel.Find("a").First()
		if href, ok := anchor.Attr("href"); ok {
			raw.URL = href
		}
		if title, ok := anchor.Attr("title"); ok {
			raw.Title = title
		} else {
			raw.Title = strings.TrimSpace(anchor.Text())
		}

		if src, ok := sel.Find("img").First().Attr("src"); ok {
			raw.Photos = []model.RawPhoto{{URL: src}}
		}

		items = append(items, raw)
	})

	return items, nil
}
