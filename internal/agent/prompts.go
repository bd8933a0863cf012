package agent

import (
	"fmt"
	"strings"

	"github.com/fiscaldata/invoice-agent/internal/table"
)

// DefaultAnswerLanguage matches the original operator audience.
const DefaultAnswerLanguage = "português"

// BuildPreamble renders the fixed contextual preamble sent with every question:
// what the merged table is, where its columns come from, the data itself as CSV,
// and the language to answer in.
func BuildPreamble(t *table.Table, joinKey, language string) (string, error) {
	if language == "" {
		language = DefaultAnswerLanguage
	}

	csvText, err := t.CSVString()
	if err != nil {
		return "", fmt.Errorf("agent.BuildPreamble: rendering table: %w", err)
	}

	var b strings.Builder
	b.WriteString("Contexto: Você está analisando um conjunto de dados de notas fiscais.\n")
	b.WriteString("A tabela contém informações tanto do cabeçalho da nota (fornecedor, data, valor total da nota)\n")
	b.WriteString("quanto dos itens da nota (produto, quantidade, valor unitário).\n")
	fmt.Fprintf(&b, "As duas fontes foram unidas pela coluna %q.\n\n", joinKey)

	fmt.Fprintf(&b, "Dados (CSV, %d linhas):\n", t.NumRows())
	b.WriteString(csvText)

	fmt.Fprintf(&b, "\nResponda em %s.", language)

	return b.String(), nil
}
