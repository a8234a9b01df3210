package syncer

import (
	"fmt"

	apperrors "github.com/alexjbarnes/studio-sync/internal/errors"
	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/alexjbarnes/studio-sync/internal/tree"
)

// ScriptFile is a script read back from disk.
type ScriptFile struct {
	RelPath string `json:"relPath"`
	Source  string `json:"source"`
}

// InstanceFile is an instance file read back from disk, canonicalized.
type InstanceFile struct {
	RelPath string     `json:"relPath"`
	Tree    tree.Value `json:"tree"`
	Pretty  string     `json:"pretty"`
}

// GetScript reads one file with normalized line endings.
func (e *Engine) GetScript(dir *outdir.Dir, rel string) (*ScriptFile, error) {
	text, err := dir.ReadText(rel)
	if err != nil {
		return nil, err
	}

	return &ScriptFile{RelPath: rel, Source: text}, nil
}

// GetInstance reads one instance file and returns its canonical form.
func (e *Engine) GetInstance(dir *outdir.Dir, rel string) (*InstanceFile, error) {
	text, err := dir.ReadText(rel)
	if err != nil {
		return nil, err
	}

	v, err := tree.Decode([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidTree, rel)
	}

	canon := e.canon.Canonicalize(v).Value()

	return &InstanceFile{
		RelPath: rel,
		Tree:    canon,
		Pretty:  string(tree.Pretty(canon)),
	}, nil
}
