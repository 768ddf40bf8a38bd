package archive

import (
	"strings"

	"webb-archiver/pkg/models"
)

const factsHeaderRule = "--------------------" // 20 dashes under each facts section header

// DeriveFilename turns an (already unescaped) title into the base name shared by an entry's files.
// Spaces become underscores and literal "&nbsp;" is dropped; nothing else is sanitized.
func DeriveFilename(title string) string {
	return strings.ReplaceAll(strings.ReplaceAll(title, " ", "_"), "&nbsp;", "")
}

// RenderFactsText produces the companion .txt content for an archived image
func RenderFactsText(releaseDate, about string, facts []models.Fact) string {
	var b strings.Builder
	b.WriteString(releaseDate)
	b.WriteString("\n\n")
	b.WriteString("About this image:\n")
	b.WriteString(about)
	b.WriteString("\n")

	for _, fact := range facts {
		if fact.IsHeader() {
			b.WriteString("\n" + fact.Header + "\n" + factsHeaderRule + "\n")
			continue
		}
		b.WriteString(fact.Key() + ": " + fact.Value() + "\n")
	}
	return b.String()
}
