package batch

import (
	"fmt"
	"strings"
)

// BatchError lista os presets que falharam numa execução (em ordem) e, se
// houver, a falha ao gravar o index.
type BatchError struct {
	Failed   []string
	Errs     []error
	IndexErr error
}

func (e *BatchError) Error() string {
	var parts []string
	if len(e.Failed) > 0 {
		parts = append(parts, "snapshot sequence failed for presets: "+strings.Join(e.Failed, ", "))
	}
	if e.IndexErr != nil {
		parts = append(parts, fmt.Sprintf("index update failed: %v", e.IndexErr))
	}
	return strings.Join(parts, "; ")
}

func (e *BatchError) Unwrap() []error {
	errs := append([]error(nil), e.Errs...)
	if e.IndexErr != nil {
		errs = append(errs, e.IndexErr)
	}
	return errs
}
