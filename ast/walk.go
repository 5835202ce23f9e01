package ast

// Visitor's Visit method is invoked for each node Walk encounters. If the
// returned Visitor is non-nil, Walk recurses into the node's children with
// it, then calls Visit(nil) to signal the end of that subtree.
type Visitor interface {
	Visit(node Node) (w Visitor)
}

// Walk traverses an AST in depth-first order.
func Walk(v Visitor, node Node) {
	if node == nil {
		return
	}
	if v = v.Visit(node); v == nil {
		return
	}
	defer v.Visit(nil)

	switch x := node.(type) {
	case *CommandList:
		for _, s := range x.Stmts {
			Walk(v, s)
		}
	case *AndOr:
		for _, p := range x.Pipelines {
			Walk(v, p)
		}
	case *Pipeline:
		for _, s := range x.Stages {
			Walk(v, s)
		}
	case *SimpleCommand:
		for _, a := range x.Assigns {
			Walk(v, a)
		}
		for i := range x.Words {
			Walk(v, &x.Words[i])
		}
		for _, r := range x.Redirs {
			Walk(v, r)
		}
	case *Assign:
		if x.Name != nil {
			Walk(v, x.Name)
		}
		Walk(v, &x.Value)
	case *Redirect:
		Walk(v, &x.Target)
		if x.Hdoc != nil {
			Walk(v, &x.Hdoc.Body)
		}
	case *If:
		Walk(v, x.Cond)
		Walk(v, x.Then)
		for _, e := range x.Elifs {
			Walk(v, e.Cond)
			Walk(v, e.Then)
		}
		if x.Else != nil {
			Walk(v, x.Else)
		}
		walkRedirs(v, x.Redirs)
	case *While:
		Walk(v, x.Cond)
		Walk(v, x.Body)
		walkRedirs(v, x.Redirs)
	case *For:
		switch loop := x.Loop.(type) {
		case *WordIter:
			Walk(v, &loop.Name)
			for i := range loop.List {
				Walk(v, &loop.List[i])
			}
		case *CStyleFor:
			if loop.Init != nil {
				Walk(v, loop.Init)
			}
			if loop.Cond != nil {
				Walk(v, loop.Cond)
			}
			if loop.Post != nil {
				Walk(v, loop.Post)
			}
		}
		Walk(v, x.Body)
		walkRedirs(v, x.Redirs)
	case *Select:
		Walk(v, &x.Name)
		for i := range x.List {
			Walk(v, &x.List[i])
		}
		Walk(v, x.Body)
		walkRedirs(v, x.Redirs)
	case *Case:
		Walk(v, &x.Word)
		for _, item := range x.Items {
			for i := range item.Patterns {
				Walk(v, &item.Patterns[i])
			}
			Walk(v, item.Body)
		}
		walkRedirs(v, x.Redirs)
	case *Subshell:
		Walk(v, x.Body)
		walkRedirs(v, x.Redirs)
	case *BraceGroup:
		Walk(v, x.Body)
		walkRedirs(v, x.Redirs)
	case *FunctionDef:
		Walk(v, &x.Name)
		Walk(v, x.Body)
		walkRedirs(v, x.Redirs)
	case *ArithCmd:
		Walk(v, x.X)
		walkRedirs(v, x.Redirs)
	case *EnhancedTest:
		Walk(v, x.X)
		walkRedirs(v, x.Redirs)
	case *BinaryArithm:
		Walk(v, x.X)
		Walk(v, x.Y)
	case *UnaryArithm:
		Walk(v, x.X)
	case *ParenArithm:
		Walk(v, x.X)
	case *WordArithm:
		Walk(v, &x.W)
	case *BinaryTest:
		Walk(v, x.X)
		Walk(v, x.Y)
	case *UnaryTest:
		Walk(v, x.X)
	case *ParenTest:
		Walk(v, x.X)
	case *WordTest:
		Walk(v, &x.W)
	case *Word:
		for _, p := range x.Parts {
			Walk(v, p)
		}
	case *DblQuoted:
		for _, p := range x.Parts {
			Walk(v, p)
		}
	case *CmdSubst:
		if x.Stmts != nil {
			Walk(v, x.Stmts)
		}
	case *ArithExp:
		Walk(v, x.X)
	case *ParamExp:
		if x.Index != nil {
			Walk(v, x.Index)
		}
		if x.Slice != nil {
			if x.Slice.Offset != nil {
				Walk(v, x.Slice.Offset)
			}
			if x.Slice.Length != nil {
				Walk(v, x.Slice.Length)
			}
		}
		if x.Repl != nil {
			Walk(v, &x.Repl.Orig)
			Walk(v, &x.Repl.With)
		}
		if x.Exp != nil {
			Walk(v, &x.Exp.Word)
		}
	case *BraceExp:
		for i := range x.Elems {
			Walk(v, &x.Elems[i])
		}
	case *ExtGlob:
		Walk(v, &x.Pattern)
	}
}

func walkRedirs(v Visitor, rs []*Redirect) {
	for _, r := range rs {
		Walk(v, r)
	}
}
