package router

import (
	"sort"
	"strings"
)

type cmdNode struct {
	name     string
	cmd      *Command
	children map[string]*cmdNode
}

func newRoot() *cmdNode { return &cmdNode{children: map[string]*cmdNode{}} }

func splitRoute(route string) []string { return strings.Fields(route) }

func (n *cmdNode) add(route []string, c Command) *cmdNode {
	cur := n
	for _, tok := range route {
		next, ok := cur.children[tok]
		if !ok {
			next = &cmdNode{name: tok, children: map[string]*cmdNode{}}
			cur.children[tok] = next
		}
		cur = next
	}
	cur.cmd = &c
	return cur
}

func (n *cmdNode) child(name string) (*cmdNode, bool) {
	c, ok := n.children[name]
	return c, ok
}

func (n *cmdNode) childNames() []string {
	out := make([]string, 0, len(n.children))
	for k := range n.children {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// visible reports whether n or any descendant is a non-hidden command.
func (n *cmdNode) visible() bool {
	if n.cmd != nil && !n.cmd.Hidden {
		return true
	}
	for _, c := range n.children {
		if c.visible() {
			return true
		}
	}
	return false
}

// operatorOnly is true for an operator leaf, or a group whose commands are all operator-only.
func (n *cmdNode) operatorOnly() bool {
	if n.cmd != nil {
		return n.cmd.Access == AccessOperator
	}
	for _, c := range n.children {
		if !c.operatorOnly() {
			return false
		}
	}
	return len(n.children) > 0
}
