package vault

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/resaleradar/marketscan/internal/model"
)

// errMalformed marks a raw listing that cannot be normalized. The
// listing is skipped and counted, never failing the batch.
var errMalformed = errors.New("malformed listing")

// parsePrice resolves the listing price from the raw shape. Extraction
// rules run in fixed preference order: a direct numeric (or numeric
// string) price field first, then the currency object nested under the
// price field, then the separate total-price object. Anything else is
// unparsable.
func parsePrice(raw model.RawListing) (float64, error) {
	switch v := raw.Price.(type) {
	case float64:
		return checkPrice(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return checkPrice(f)
		}
	case map[string]any:
		if amount, ok := v["amount"]; ok {
			switch a := amount.(type) {
			case float64:
				return checkPrice(a)
			case string:
				if f, err := strconv.ParseFloat(strings.TrimSpace(a), 64); err == nil {
					return checkPrice(f)
				}
			}
		}
	}
	if raw.TotalItemPrice != nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw.TotalItemPrice.Amount), 64); err == nil {
			return checkPrice(f)
		}
	}
	return 0, fmt.Errorf("%w: no parsable price", errMalformed)
}

func checkPrice(f float64) (float64, error) {
	if f < 0 {
		return 0, fmt.Errorf("%w: negative price", errMalformed)
	}
	return f, nil
}

// parseID normalizes the upstream identifier, which arrives as either
// a JSON number or a string.
func parseID(v any) (string, error) {
	switch id := v.(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return strconv.FormatInt(int64(id), 10), nil
	}
	return "", fmt.Errorf("%w: missing id", errMalformed)
}

// normalizeBrand lowercases the brand and substitutes "unknown" when
// the field is absent.
func normalizeBrand(brand string) string {
	b := strings.ToLower(strings.TrimSpace(brand))
	if b == "" {
		return "unknown"
	}
	return b
}

// normalizePath reduces the listing locator to a host-relative path.
// Absolute URLs lose their scheme and host so the orchestrator can
// prefix the market host exactly once.
func normalizePath(locator string) string {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return ""
	}
	if u, err := url.Parse(locator); err == nil && u.Host != "" {
		locator = u.RequestURI()
	}
	if !strings.HasPrefix(locator, "/") {
		locator = "/" + locator
	}
	return locator
}

// photoURL picks the first available photo.
func photoURL(raw model.RawListing) string {
	if raw.Photo != nil && raw.Photo.URL != "" {
		return raw.Photo.URL
	}
	if len(raw.Photos) > 0 {
		return raw.Photos[0].URL
	}
	return ""
}

// normalize turns a raw listing into the vault's record form.
func normalize(raw model.RawListing, marketKey string) (model.Listing, error) {
	id, err := parseID(raw.ID)
	if err != nil {
		return model.Listing{}, err
	}
	price, err := parsePrice(raw)
	if err != nil {
		return model.Listing{}, err
	}
	favorites := raw.FavoriteCount
	if favorites < 0 {
		favorites = 0
	}
	return model.Listing{
		ID:            id,
		Title:         raw.Title,
		Brand:         normalizeBrand(raw.BrandTitle),
		Price:         price,
		FavoriteCount: favorites,
		PhotoURL:      photoURL(raw),
		Path:          normalizePath(raw.URL),
		Market:        marketKey,
	}, nil
}
