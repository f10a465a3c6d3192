package edgeheap

import "errors"

var (
	ErrRecordTooLarge     = errors.New("record does not fit on an empty data page")
	ErrInvalidUpdate      = errors.New("replacement record length differs from the stored record")
	ErrAllocationFailed   = errors.New("page allocation failed")
	ErrCorruptEntry       = errors.New("corrupt directory entry")
	ErrFileAlreadyDeleted = errors.New("edge heap file already deleted")
	ErrCorruptEdge        = errors.New("corrupt edge record")
	ErrEmptyRecord        = errors.New("record must not be empty")
)
