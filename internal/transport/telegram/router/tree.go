package router

import (
	"sort"
	"strings"
)

// cmdNode is one word of a route. Groups like "remind" have children and
// usually no handler of their own.
type cmdNode struct {
	name     string
	cmd      *Command
	children map[string]*cmdNode
}

func (n *cmdNode) sub(name string) *cmdNode {
	if n == nil {
		return nil
	}
	return n.children[name]
}

func (n *cmdNode) names() []string {
	out := make([]string, 0, len(n.children))
	for k := range n.children {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// commands returns every command at or below n, ordered by route.
func (n *cmdNode) commands() []Command {
	var out []Command
	var walk func(*cmdNode)
	walk = func(x *cmdNode) {
		if x.cmd != nil {
			out = append(out, *x.cmd)
		}
		for _, name := range x.names() {
			walk(x.children[name])
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

// ownerOnly reports whether nothing at or below n is open to everyone.
func (n *cmdNode) ownerOnly() bool {
	cmds := n.commands()
	for _, c := range cmds {
		if c.Access == AccessEveryone {
			return false
		}
	}
	return len(cmds) > 0
}

// commandTree is the routing table built once per SetRegistry call and
// never mutated afterwards.
type commandTree struct {
	root    *cmdNode
	aliases map[string]*cmdNode
}

func splitRoute(route string) []string {
	return strings.Fields(route)
}

// buildTree registers cmds in order. Routes without a handler are skipped.
// Besides explicit aliases every multi-word route gets its Telegram menu
// form ("remind add" -> "remind_add") so menu taps resolve.
func buildTree(cmds []Command) *commandTree {
	t := &commandTree{
		root:    &cmdNode{children: map[string]*cmdNode{}},
		aliases: map[string]*cmdNode{},
	}
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		leaf := t.insert(route, c)
		if len(route) > 1 {
			if name := menuName(route); name != "" {
				t.alias(name, leaf, false)
			}
		}
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.ContainsAny(a, " \t") {
				continue
			}
			t.alias(a, leaf, true)
			t.alias(sanitizeTelegramCommand(a), leaf, false)
		}
	}
	return t
}

func (t *commandTree) insert(route []string, c Command) *cmdNode {
	cur := t.root
	for _, word := range route {
		next := cur.children[word]
		if next == nil {
			next = &cmdNode{name: word, children: map[string]*cmdNode{}}
			cur.children[word] = next
		}
		cur = next
	}
	cur.cmd = &c
	return cur
}

// alias maps name to leaf. Explicit aliases win over generated ones.
func (t *commandTree) alias(name string, leaf *cmdNode, override bool) {
	if name == "" {
		return
	}
	if _, taken := t.aliases[name]; taken && !override {
		return
	}
	t.aliases[name] = leaf
}

// resolve walks word and as many leading args as match the tree. It returns
// the deepest node reached, its full route and the remaining args. Flags end
// the walk so "/remind add --every daily" keeps its flags.
func (t *commandTree) resolve(word string, args []string) (*cmdNode, []string, []string) {
	if leaf, ok := t.aliases[word]; ok {
		return leaf, splitRoute(leaf.cmd.Route), args
	}
	cur := t.root.sub(word)
	if cur == nil {
		return nil, nil, args
	}
	path := []string{word}
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		next := cur.sub(args[0])
		if next == nil {
			break
		}
		cur = next
		path = append(path, args[0])
		args = args[1:]
	}
	return cur, path, args
}

// lookup follows path exactly, trying the first word as an alias too.
func (t *commandTree) lookup(path []string) (*cmdNode, []string) {
	if len(path) == 0 {
		return t.root, nil
	}
	node, full, rest := t.resolve(path[0], path[1:])
	if node == nil || len(rest) > 0 {
		return nil, nil
	}
	return node, full
}
