package resolver

import (
	"fmt"

	"github.com/crystal-mush/gridscript/pkg/tree"
)

// ---------- Tagging ----------

func (r *Resolver) tagReserved(root *tree.Tree) {
	tree.Walk(root, func(n *tree.Tree) bool {
		if n.Tag == tree.TagUnknown && r.reserved[n.Text] {
			n.Tag = tree.TagReservedWord
		}
		return true
	})
}

func (r *Resolver) tagVariables(root *tree.Tree, vars map[string]bool) {
	tree.Walk(root, func(n *tree.Tree) bool {
		if n.Tag == tree.TagUnknown && vars[n.Text] {
			n.Tag = tree.TagVariable
		}
		return true
	})
}

func (r *Resolver) resolveLiterals(root *tree.Tree) error {
	var err error
	tree.Walk(root, func(n *tree.Tree) bool {
		if err != nil {
			return false
		}
		if n.Value != nil || n.Deferred() {
			return true
		}
		if n.Tag == tree.TagStringLiteral || n.Tag == tree.TagNumericLiteral {
			err = n.Process()
		}
		return err == nil
	})
	return err
}

func (r *Resolver) tagSeparators(root *tree.Tree) {
	tree.Walk(root, func(n *tree.Tree) bool {
		if n.Tag != tree.TagStringLiteral && n.Tag != tree.TagExpressionRoot && n.Text == r.syntax.Separator {
			n.Tag = tree.TagSeparator
		}
		return true
	})
}

func (r *Resolver) tagBrackets(root *tree.Tree) {
	tree.Walk(root, func(n *tree.Tree) bool {
		if n.Tag != tree.TagUnknown && n.Tag != tree.TagOperatorUnresolved {
			return true
		}
		if _, ok := r.openers[n.Text]; ok {
			n.Tag = tree.TagLevelOpenMarker
		} else if _, ok := r.closers[n.Text]; ok {
			n.Tag = tree.TagLevelCloseMarker
		}
		return true
	})
}

// ---------- Brackets ----------

// sortBrackets nests the root's flat children into Level nodes with a
// single left-to-right scan over an explicit stack of open levels.
func (r *Resolver) sortBrackets(root *tree.Tree) error {
	flat := root.Children
	root.Children = nil
	stack := []*tree.Tree{root}
	for _, n := range flat {
		top := stack[len(stack)-1]
		switch n.Tag {
		case tree.TagLevelOpenMarker:
			n.Tag = tree.TagLevel
			top.Append(n)
			stack = append(stack, n)
		case tree.TagLevelCloseMarker:
			want := r.closers[n.Text]
			if len(stack) == 1 {
				return errorf(ErrBracketMismatch, n.Pos, "'%s' does not match any '%s'", n.Text, want)
			}
			if top.Text != want {
				return errorf(ErrBracketMismatch, n.Pos, "'%s' does not match '%s'", n.Text, top.Text)
			}
			stack = stack[:len(stack)-1]
		default:
			top.Append(n)
		}
	}
	if len(stack) > 1 {
		open := stack[len(stack)-1]
		return errorf(ErrUnclosedBracket, open.Pos, "missing matching '%s' for '%s'", r.openers[open.Text], open.Text)
	}
	return nil
}

// ---------- Declarations ----------

func (r *Resolver) sortDeclarations(root *tree.Tree) error {
	for _, c := range tree.Containers(root) {
		for {
			found, err := r.declarationIn(c)
			if err != nil {
				return err
			}
			if !found {
				break
			}
		}
	}
	return nil
}

// declarationIn regroups the innermost angle-bracket literal of c, if any.
func (r *Resolver) declarationIn(c *tree.Tree) (bool, error) {
	kids := c.Children
	open := -1
	for i := len(kids) - 1; i >= 0; i-- {
		if r.opensDeclaration(kids, i) {
			open = i
			break
		}
	}
	if open < 0 {
		return false, nil
	}
	end := -1
	for j := open + 1; j < len(kids); j++ {
		if r.closesDeclaration(kids, j) {
			end = j
			break
		}
	}
	if end < 0 {
		return false, errorf(ErrUnclosedDeclaration, kids[open].Pos,
			"missing matching '%s' for '%s'", r.syntax.AngleClose, kids[open].Text)
	}
	decl := tree.New(tree.TagDeclaration, kids[open].Text, kids[open].Pos)
	owner := fmt.Sprintf("declaration '%s'", kids[open].Text)
	args, err := r.splitArguments(kids[open+1:end], tree.TagDeclarationArgument, owner)
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		return false, errorf(ErrMissingArgument, decl.Pos, "missing parameter in %s", owner)
	}
	decl.Children = args
	c.Children = splice(kids, open, end+1, decl)
	return true, nil
}

// opensDeclaration: an angle opener at the start of a level or after an
// operator, separator or keyword. After an operand, or a postfix operator
// closing one, it is a comparison.
func (r *Resolver) opensDeclaration(kids []*tree.Tree, i int) bool {
	n := kids[i]
	if n.Tag != tree.TagOperatorUnresolved || n.Text != r.syntax.AngleOpen {
		return false
	}
	if i == 0 {
		return true
	}
	switch kids[i-1].Tag {
	case tree.TagOperatorUnresolved:
		// i++ < n: a postfix operator has already completed the operand.
		return !r.postfixAt(kids, i-1)
	case tree.TagSeparator, tree.TagReservedWord:
		return true
	}
	return false
}

// closesDeclaration: an angle closer that ends the level or is followed by
// an operator or separator.
func (r *Resolver) closesDeclaration(kids []*tree.Tree, j int) bool {
	n := kids[j]
	if n.Tag != tree.TagOperatorUnresolved || n.Text != r.syntax.AngleClose {
		return false
	}
	if j == len(kids)-1 {
		return true
	}
	switch kids[j+1].Tag {
	case tree.TagOperatorUnresolved, tree.TagSeparator:
		return true
	}
	return false
}

// splitArguments groups items into wrapper nodes at each separator. An
// empty group is a missing argument. No items means no arguments.
func (r *Resolver) splitArguments(items []*tree.Tree, wrap tree.Tag, owner string) ([]*tree.Tree, error) {
	if len(items) == 0 {
		return nil, nil
	}
	var args []*tree.Tree
	cur := tree.New(wrap, "", items[0].Pos)
	for _, n := range items {
		if n.Tag == tree.TagSeparator {
			if len(cur.Children) == 0 {
				return nil, errorf(ErrMissingArgument, n.Pos, "missing parameter in %s", owner)
			}
			args = append(args, cur)
			cur = tree.New(wrap, "", n.Pos)
			continue
		}
		if len(cur.Children) == 0 {
			cur.Pos = n.Pos
		}
		cur.Append(n)
	}
	if len(cur.Children) == 0 {
		return nil, errorf(ErrMissingArgument, cur.Pos, "missing parameter in %s", owner)
	}
	return append(args, cur), nil
}

// ---------- Calls and lists ----------

func (r *Resolver) sortFunctions(root *tree.Tree) error {
	for _, c := range tree.Containers(root) {
		out := make([]*tree.Tree, 0, len(c.Children))
		for _, n := range c.Children {
			if n.Tag != tree.TagLevel {
				out = append(out, n)
				continue
			}
			if n.Text == r.syntax.CallBracket && len(out) > 0 && out[len(out)-1].Tag == tree.TagUnknown {
				name := out[len(out)-1]
				fn := tree.New(tree.TagFunction, name.Text, name.Pos)
				args, err := r.splitArguments(n.Children, tree.TagFunctionArgument, fmt.Sprintf("call to '%s'", name.Text))
				if err != nil {
					return err
				}
				fn.Children = args
				out[len(out)-1] = fn
				continue
			}
			if n.Text == r.syntax.ListBracket {
				list := tree.New(tree.TagList, n.Text, n.Pos)
				args, err := r.splitArguments(n.Children, tree.TagDeclarationArgument, fmt.Sprintf("list '%s'", n.Text))
				if err != nil {
					return err
				}
				list.Children = args
				out = append(out, list)
				continue
			}
			out = append(out, n)
		}
		c.Children = out
	}
	return nil
}

// ---------- Member access ----------

// sortDots combines a.b eagerly, left to right, before any other operator.
func (r *Resolver) sortDots(root *tree.Tree) {
	for _, c := range tree.Containers(root) {
		kids := c.Children
		for i := 1; i+1 < len(kids); {
			n := kids[i]
			right := kids[i+1]
			if n.Tag == tree.TagOperatorUnresolved && n.Text == r.syntax.Dot &&
				isValidLeftHand(kids[i-1]) && (right.Tag == tree.TagVariable || right.Tag == tree.TagUnknown) {
				n.Tag = tree.TagOperatorBinary
				n.Children = []*tree.Tree{kids[i-1], right}
				n.AlreadyCombined = true
				kids = splice(kids, i-1, i+2, n)
				continue
			}
			i++
		}
		c.Children = kids
	}
}

// ---------- Unary operators ----------

func (r *Resolver) identifyUnary(root *tree.Tree) {
	for _, c := range tree.Containers(root) {
		kids := c.Children
		for i := len(kids) - 1; i >= 0; i-- {
			n := kids[i]
			if n.Tag != tree.TagOperatorUnresolved {
				continue
			}
			if r.prefixAt(kids, i) {
				n.Tag = tree.TagOperatorPrefix
			} else if r.postfixAt(kids, i) {
				n.Tag = tree.TagOperatorPostfix
			}
		}
	}
}

func (r *Resolver) prefixAt(kids []*tree.Tree, i int) bool {
	if !r.hasFixity(kids[i].Text, LeftUnary) {
		return false
	}
	if i+1 >= len(kids) || !isValidUnaryLeft(kids[i+1]) {
		return false
	}
	if i == 0 {
		return true
	}
	left := kids[i-1]
	switch left.Tag {
	case tree.TagOperatorUnresolved:
		// a++ - b: the left operator takes the operand as postfix.
		return !r.postfixAt(kids, i-1)
	case tree.TagOperatorBinary:
		return !left.AlreadyCombined
	case tree.TagSeparator, tree.TagReservedWord:
		return true
	}
	return false
}

func (r *Resolver) postfixAt(kids []*tree.Tree, i int) bool {
	if kids[i].Tag != tree.TagOperatorUnresolved || !r.hasFixity(kids[i].Text, RightUnary) {
		return false
	}
	return i > 0 && isValidUnaryRight(kids[i-1])
}

// sortUnary lets each unary operator absorb its operand, right to left.
func (r *Resolver) sortUnary(root *tree.Tree) error {
	for _, c := range tree.Containers(root) {
		kids := c.Children
		for i := len(kids) - 1; i >= 0; i-- {
			n := kids[i]
			if n.AlreadyCombined {
				continue
			}
			switch n.Tag {
			case tree.TagOperatorPrefix:
				if i+1 >= len(kids) {
					continue
				}
				operand := kids[i+1]
				if n.Text == r.syntax.Negate && operand.Deferred() {
					lit := tree.New(tree.TagNumericLiteral, n.Text+operand.Text, n.Pos)
					v := tree.Integer(-1 << 31)
					lit.Value = &v
					kids = splice(kids, i, i+2, lit)
					continue
				}
				n.Children = []*tree.Tree{operand}
				n.AlreadyCombined = true
				kids = splice(kids, i, i+2, n)
			case tree.TagOperatorPostfix:
				if i == 0 {
					continue
				}
				n.Children = []*tree.Tree{kids[i-1]}
				n.AlreadyCombined = true
				kids = splice(kids, i-1, i+1, n)
				i--
			}
		}
		c.Children = kids
	}

	// A deferred literal nobody negated resolves by the ordinary rule.
	var err error
	tree.Walk(root, func(n *tree.Tree) bool {
		if err == nil && n.Deferred() {
			err = n.Process()
		}
		return err == nil
	})
	return err
}

// ---------- Binary operators ----------

func (r *Resolver) identifyBinary(root *tree.Tree) {
	for _, c := range tree.Containers(root) {
		kids := c.Children
		for i := 1; i+1 < len(kids); i++ {
			n := kids[i]
			if n.Tag != tree.TagOperatorUnresolved || !r.hasFixity(n.Text, Binary) {
				continue
			}
			if isValidLeftHand(kids[i-1]) && isValidRightHand(kids[i+1]) {
				n.Tag = tree.TagOperatorBinary
			}
		}
	}
}

// sortBinary absorbs operands level by level, tightest first. Scanning each
// level left to right makes every level left-associative.
func (r *Resolver) sortBinary(root *tree.Tree) {
	for _, lvl := range r.levels {
		for _, c := range tree.Containers(root) {
			kids := c.Children
			for i := 1; i+1 < len(kids); i++ {
				n := kids[i]
				if n.Tag != tree.TagOperatorBinary || n.AlreadyCombined {
					continue
				}
				if f, ok := lvl[n.Text]; !ok || f != Binary {
					continue
				}
				n.Children = []*tree.Tree{kids[i-1], kids[i+1]}
				n.AlreadyCombined = true
				kids = splice(kids, i-1, i+2, n)
				i--
			}
			c.Children = kids
		}
	}
}

// ---------- Final check ----------

func (r *Resolver) check(root *tree.Tree) error {
	switch len(root.Children) {
	case 0:
		return errorf(ErrUnresolved, root.Pos, "expression tree not solved: empty expression")
	case 1:
	default:
		return errorf(ErrUnresolved, root.Children[1].Pos, "expression tree not solved near '%s'", root.Children[1].Text)
	}
	var err error
	tree.Walk(root.Children[0], func(n *tree.Tree) bool {
		if err != nil {
			return false
		}
		switch n.Tag {
		case tree.TagLevel, tree.TagFunctionArgument, tree.TagDeclarationArgument:
			if len(n.Children) == 0 {
				err = errorf(ErrUnresolved, n.Pos, "expression tree not solved: empty group")
			} else if len(n.Children) > 1 {
				err = errorf(ErrUnresolved, n.Children[1].Pos, "expression tree not solved near '%s'", n.Children[1].Text)
			}
		case tree.TagOperatorUnresolved, tree.TagSeparator, tree.TagLevelOpenMarker, tree.TagLevelCloseMarker:
			err = errorf(ErrUnresolved, n.Pos, "expression tree not solved: unexpected '%s'", n.Text)
		case tree.TagReservedWord:
			err = errorf(ErrUnresolved, n.Pos, "expression tree not solved: unexpected reserved word '%s'", n.Text)
		case tree.TagOperatorPrefix, tree.TagOperatorPostfix, tree.TagOperatorBinary:
			if !n.AlreadyCombined {
				err = errorf(ErrUnresolved, n.Pos, "expression tree not solved: operator '%s' is missing an operand", n.Text)
			}
		}
		return err == nil
	})
	return err
}
