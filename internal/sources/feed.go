package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/mmcdole/gofeed"

	"freshctx/internal/crawler"
	"freshctx/internal/normalizer"
)

// ErrFeedParse is returned when a feed body yields no entries and cannot be parsed.
var ErrFeedParse = errors.New("feed parse failed")

// maxSalvageCuts bounds how many entry boundaries parseFeed backs off over
// when recovering a broken feed.
const maxSalvageCuts = 16

// parseFeed parses an RSS or Atom body.
//
// When the body is broken after some complete entries (a truncated download,
// a malformed trailing item), the entries before the break are returned
// together with the parser error as a non-nil warning. When nothing usable
// comes out, the error wraps ErrFeedParse.
func parseFeed(body []byte) (feed *gofeed.Feed, warning error, err error) {
	feed, parseErr := gofeed.NewParser().Parse(bytes.NewReader(body))
	if parseErr == nil {
		return feed, nil, nil
	}

	if feed != nil && len(feed.Items) > 0 {
		return feed, parseErr, nil
	}

	if salvaged := salvageFeed(body); salvaged != nil {
		return salvaged, parseErr, nil
	}

	return nil, nil, fmt.Errorf("%w: %w", ErrFeedParse, parseErr)
}

// salvageFeed cuts body after complete entries, closes the document and
// re-parses it, backing off one entry at a time. It returns nil when no
// prefix yields entries.
func salvageFeed(body []byte) *gofeed.Feed {
	endTag, closing := []byte("</item>"), "</channel></rss>"

	switch {
	case bytes.Contains(body, []byte("<rdf:RDF")):
		closing = "</rdf:RDF>"
	case !bytes.Contains(body, endTag):
		endTag, closing = []byte("</entry>"), "</feed>"
	}

	end := len(body)

	for range maxSalvageCuts {
		idx := bytes.LastIndex(body[:end], endTag)
		if idx < 0 {
			return nil
		}

		end = idx + len(endTag)

		doc := make([]byte, 0, end+len(closing))
		doc = append(doc, body[:end]...)
		doc = append(doc, closing...)

		feed, err := gofeed.NewParser().Parse(bytes.NewReader(doc))
		if err == nil && feed != nil && len(feed.Items) > 0 {
			return feed
		}

		end = idx
	}

	return nil
}

// itemTimestamp picks the first usable timestamp of a feed entry:
// published text, updated text, then the parser's structured values.
func itemTimestamp(item *gofeed.Item) any {
	candidates := []any{item.Published, item.Updated, item.PublishedParsed, item.UpdatedParsed}

	for _, candidate := range candidates {
		if _, ok := normalizer.Coerce(candidate); ok {
			return candidate
		}
	}

	return nil
}

type feedBody struct {
	body []byte
	err  error
}

// fetchFeeds downloads every url concurrently. Results are index-aligned with urls.
func fetchFeeds(ctx context.Context, f crawler.Fetcher, urls []string, header http.Header) []feedBody {
	results := make([]feedBody, len(urls))

	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)

		go func(index int, feedURL string) {
			defer wg.Done()

			body, err := f.Get(ctx, feedURL, header)
			results[index] = feedBody{body: body, err: err}
		}(i, u)
	}

	wg.Wait()

	return results
}
