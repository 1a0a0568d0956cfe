package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// WriteJSON streams the report to w. Files are encoded one at a time so
// a large report never has to be marshaled in one buffer.
func (r *Report) WriteJSON(w io.Writer) error {
	generated, err := json.Marshal(r.GeneratedAt.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	project, err := json.Marshal(r.Project)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "{\"project\":%s,\"generated_at\":%s,\"files\":[", project, generated); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for i, f := range r.Files {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		// Encoder appends a newline after each value; harmless inside
		// the array.
		if err := enc.Encode(f); err != nil {
			return err
		}
	}

	_, err = io.WriteString(w, "]}\n")
	return err
}
