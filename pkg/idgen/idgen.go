package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator hands out snowflake ids: unique across nodes and increasing
// within one node.
type Generator struct {
	node *snowflake.Node
}

func New(node int64) (*Generator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", node, err)
	}
	return &Generator{node: n}, nil
}

func (g *Generator) NextID() int64 {
	return g.node.Generate().Int64()
}
