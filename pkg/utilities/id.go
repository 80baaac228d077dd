package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewRequestID returns an id suitable for the X-Request-Id header.
func NewRequestID() string {
	return NewKSUID()
}

// defaultNode lazily builds the process-wide snowflake node from SNOWFLAKE_NODE.
// A single node must be shared: separate nodes in one process reuse sequence
// numbers within the same millisecond.
func defaultNode() *snowflake.Node {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeID = n
			}
		}
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			// out-of-range node ids fall back to node 1
			n, _ = snowflake.NewNode(1)
		}
		node = n
	})
	return node
}

// NewSnowflakeInt64 generates a snowflake ID for use as a numeric primary key.
func NewSnowflakeInt64() int64 {
	return defaultNode().Generate().Int64()
}
