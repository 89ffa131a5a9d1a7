package report

import (
	"encoding/json"
	"io"

	"github.com/newtron-network/newtrace/pkg/newtrace/trace"
)

// WriteJSON writes tr as indented JSON.
func WriteJSON(w io.Writer, tr *trace.Trace) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tr)
}
