package index

import (
	"fmt"

	pkgerrors "annie/pkg/errors"
)

// New creates an empty backend for config.
func New(config *IndexConfig) (Backend, error) {
	if config == nil {
		return nil, pkgerrors.Wrap("new", fmt.Errorf("%w: nil config", pkgerrors.ErrInvalidParameter))
	}
	switch config.IndexType {
	case FLATIndex, "":
		return newFlatIndex(config)
	case HNSWIndex:
		return newGraphIndex(config)
	default:
		return nil, pkgerrors.Wrap("new", fmt.Errorf("%w: %s", pkgerrors.ErrUnsupportedIndexType, config.IndexType))
	}
}

// Persistent reports whether indexes of type t can be saved and restored.
func Persistent(t IndexType) bool {
	return t == FLATIndex || t == ""
}
