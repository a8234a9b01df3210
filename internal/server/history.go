package server

import "github.com/alexjbarnes/studio-sync/internal/state"

//go:generate mockgen -source=history.go -destination=mock_history_test.go -package=server

// History stores completed write operations. *state.State implements it.
type History interface {
	Record(op state.Operation) error
	History(output string, limit int) ([]state.Operation, error)
}
