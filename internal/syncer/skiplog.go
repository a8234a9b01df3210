package syncer

import (
	"fmt"
	"strings"

	"github.com/alexjbarnes/studio-sync/internal/outdir"
)

// AppendSkipLog appends one line per entry to the skip log under dir and
// returns the number of lines written.
func (e *Engine) AppendSkipLog(dir *outdir.Dir, entries []SkipEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	var b strings.Builder
	for _, s := range entries {
		fmt.Fprintf(&b, "%s/%s/%s [%s] - %s\n", s.Service, strings.Join(s.Path, "/"), s.Name, s.Class, s.Reason)
	}

	if err := dir.AppendFile(SkipLogName, []byte(b.String())); err != nil {
		return 0, fmt.Errorf("appending skip log: %w", err)
	}

	return len(entries), nil
}
