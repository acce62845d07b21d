package formatter

import (
	"encoding/json"
	"fmt"
	"io"

	tt "github.com/gnolang/dfa/internal/types"
)

// WriteJSON writes the issues grouped by file as a JSON object.
func WriteJSON(w io.Writer, issues []tt.Issue) error {
	issuesByFile := make(map[string][]tt.Issue)
	for _, issue := range issues {
		issuesByFile[issue.Filename] = append(issuesByFile[issue.Filename], issue)
	}

	d, err := json.Marshal(issuesByFile)
	if err != nil {
		return fmt.Errorf("error marshalling issues to JSON: %w", err)
	}
	if _, err := w.Write(append(d, '\n')); err != nil {
		return fmt.Errorf("error writing JSON output: %w", err)
	}
	return nil
}
