package storage

import (
	"context"

	"github.com/homveloper/syncdoc/common"
)

// EventBus fans out committed changes to other server instances so every
// node's §6 "subscribe" listeners see writes made on any node, not just
// the one a client happened to connect to. originatingClientID lets a
// receiver skip re-delivering a change to the very connection that
// submitted it.
type EventBus interface {
	// Publish announces that docID advanced by changes.
	Publish(ctx context.Context, docID string, changes []common.Change, originatingClientID string) error

	// Subscribe registers handler for every future Publish call on any
	// node (including, unless the receiver filters on
	// originatingClientID, this one). It blocks until ctx is canceled.
	Subscribe(ctx context.Context, handler func(docID string, changes []common.Change, originatingClientID string)) error
}
