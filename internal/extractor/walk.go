package extractor

import "github.com/nnaka2992/kql-extract/internal/parser"

// VisitFunc is called once for every node with the role it fills in its
// parent. The root is visited with parser.RoleNone.
type VisitFunc func(node parser.Node, role parser.Role)

// Walk visits root and all of its descendants depth-first, parents before
// children and children left to right. A nil root visits nothing.
func Walk(root parser.Node, visit VisitFunc) {
	if root == nil {
		return
	}
	walk(root, parser.RoleNone, visit)
}

func walk(node parser.Node, role parser.Role, visit VisitFunc) {
	visit(node, role)
	for _, child := range node.Children() {
		walk(child.Node, child.Role, visit)
	}
}
