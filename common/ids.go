package common

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// NewChangeID returns a fresh client-generated, idempotency-stable change
// identifier (spec §3 "id is client-generated and idempotency-stable").
func NewChangeID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the global random source errors; fall
		// back to a plain v4 rather than panic in a hot path.
		return uuid.NewString()
	}
	return id.String()
}

// NewDocID returns a fresh document identifier.
func NewDocID() string { return uuid.NewString() }

// NewVersionID returns a fresh version (snapshot) identifier.
func NewVersionID() string { return uuid.NewString() }

// NewBranchID returns a fresh branch identifier.
func NewBranchID() string { return uuid.NewString() }

// groupIDNode generates the sortable group identifiers used to tag
// offline-batch sessions (spec §4.10 "groupId = batchId ?? fresh sortable
// id"). A single process-wide node is sufficient: the value only needs to
// sort consistently within one server process's offline-batch handling,
// not globally.
var groupIDNode = mustSnowflakeNode(1)

func mustSnowflakeNode(n int64) *snowflake.Node {
	node, err := snowflake.NewNode(n)
	if err != nil {
		panic(fmt.Sprintf("syncdoc: failed to init snowflake node: %v", err))
	}
	return node
}

// NewGroupID returns a fresh, time-sortable offline-batch group id.
func NewGroupID() string {
	return groupIDNode.Generate().String()
}
