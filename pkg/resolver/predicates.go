package resolver

import "github.com/crystal-mush/gridscript/pkg/tree"

// isOperand: anything that stands for a value. An operator counts once it
// has absorbed its operands.
func isOperand(n *tree.Tree) bool {
	switch n.Tag {
	case tree.TagUnknown, tree.TagVariable,
		tree.TagStringLiteral, tree.TagNumericLiteral,
		tree.TagLevel, tree.TagFunction, tree.TagDeclaration, tree.TagList,
		tree.TagVectorLiteral, tree.TagRotationLiteral:
		return true
	case tree.TagOperatorPrefix, tree.TagOperatorPostfix, tree.TagOperatorBinary:
		return n.AlreadyCombined
	}
	return false
}

func isValidLeftHand(n *tree.Tree) bool { return isOperand(n) }

func isValidRightHand(n *tree.Tree) bool { return isOperand(n) }

// isValidUnaryLeft: what may follow a prefix operator. Prefix operators
// chain (- -x).
func isValidUnaryLeft(n *tree.Tree) bool {
	return isOperand(n) || n.Tag == tree.TagOperatorPrefix
}

// isValidUnaryRight: what may precede a postfix operator.
func isValidUnaryRight(n *tree.Tree) bool { return isOperand(n) }
