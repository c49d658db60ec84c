package errors

import (
	"fmt"
)

var (
	ErrInvalidConfig      = fmt.Errorf("memorycore: invalid config")
	ErrNotFound           = fmt.Errorf("memorycore: not found")
	ErrInvalidParams      = fmt.Errorf("memorycore: invalid params")
	ErrInternal           = fmt.Errorf("memorycore: internal error")
	ErrUnknownTransaction = fmt.Errorf("memorycore: unknown transaction")
	ErrTransactionClosed  = fmt.Errorf("memorycore: transaction already closed")
)
