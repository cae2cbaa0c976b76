package rest

import (
	"context"
	"encoding/json"

	"github.com/seatwise/seatwise/internal/domain"
)

// collectionEnvelope is the wire shape of paginated collection responses.
// Both the plain and the OData spelling of the next link appear in the wild.
type collectionEnvelope struct {
	Value         []json.RawMessage `json:"value"`
	NextLink      string            `json:"nextLink"`
	ODataNextLink string            `json:"@odata.nextLink"`
}

// GetAllPages follows the collection's next link until absent and returns the
// concatenated value arrays. Elements stay raw for the caller to decode into
// its own types. The next link is followed verbatim, never reconstructed.
func (c *Client) GetAllPages(ctx context.Context, tokenKey, path string) ([]json.RawMessage, error) {
	items := []json.RawMessage{}

	payload, err := c.Get(ctx, tokenKey, path)
	if err != nil {
		return nil, err
	}

	pages := 0
	for {
		var page collectionEnvelope
		if err := json.Unmarshal(payload, &page); err != nil {
			return nil, domain.Parse(c.name, "collection page is not valid JSON", err)
		}
		items = append(items, page.Value...)
		pages++

		next := page.NextLink
		if next == "" {
			next = page.ODataNextLink
		}
		if next == "" {
			c.log.Debug().Int("pages", pages).Int("items", len(items)).Msg("Collection fully paged")
			return items, nil
		}

		payload, err = c.GetURL(ctx, tokenKey, next)
		if err != nil {
			return nil, err
		}
	}
}
