package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"webb-archiver/pkg/models"
	"webb-archiver/pkg/utils"
)

// ParseFactsTable reads the first table on the page into ordered section headers and key/value rows.
// Cell text is trimmed and empty cells dropped; a row with no cells, or an empty second cell, is skipped.
func ParseFactsTable(doc *goquery.Document) ([]models.Fact, error) {
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: facts 'table'", utils.ErrContentSelector)
	}
	body := table.Find("tbody").First()
	if body.Length() == 0 {
		return nil, fmt.Errorf("%w: facts 'tbody'", utils.ErrContentSelector)
	}

	facts := []models.Fact{}
	body.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if header := row.Find("th").First(); header.Length() > 0 {
			facts = append(facts, models.HeaderFact(header.Text()))
		}

		cells := row.Find("td").Map(func(_ int, td *goquery.Selection) string {
			return strings.TrimSpace(td.Text())
		})
		if len(cells) < 2 || cells[1] == "" {
			return
		}

		values := make([]string, 0, len(cells))
		for _, cell := range cells {
			if cell != "" {
				values = append(values, cell)
			}
		}
		facts = append(facts, models.PairFact(values...))
	})
	return facts, nil
}
