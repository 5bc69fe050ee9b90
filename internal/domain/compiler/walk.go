package compiler

import "github.com/dop251/goja/ast"

// inspect traverses the tree in depth-first order, calling fn for every
// node. If fn returns false the node's children are skipped. It mirrors
// go/ast.Inspect for the script syntax tree.
func inspect(node ast.Node, fn func(ast.Node) bool) {
	if isNil(node) || !fn(node) {
		return
	}

	switch n := node.(type) {
	case *ast.Program:
		for _, st := range n.Body {
			inspect(st, fn)
		}

	// statements
	case *ast.BlockStatement:
		for _, st := range n.List {
			inspect(st, fn)
		}
	case *ast.CaseStatement:
		inspectExpr(n.Test, fn)
		for _, st := range n.Consequent {
			inspect(st, fn)
		}
	case *ast.CatchStatement:
		inspectExpr(n.Parameter, fn)
		inspect(n.Body, fn)
	case *ast.DoWhileStatement:
		inspect(n.Body, fn)
		inspectExpr(n.Test, fn)
	case *ast.ExpressionStatement:
		inspectExpr(n.Expression, fn)
	case *ast.ForInStatement:
		inspectInto(n.Into, fn)
		inspectExpr(n.Source, fn)
		inspect(n.Body, fn)
	case *ast.ForOfStatement:
		inspectInto(n.Into, fn)
		inspectExpr(n.Source, fn)
		inspect(n.Body, fn)
	case *ast.ForStatement:
		switch init := n.Initializer.(type) {
		case *ast.ForLoopInitializerExpression:
			inspectExpr(init.Expression, fn)
		case *ast.ForLoopInitializerVarDeclList:
			inspectBindings(init.List, fn)
		case *ast.ForLoopInitializerLexicalDecl:
			inspectBindings(init.LexicalDeclaration.List, fn)
		}
		inspectExpr(n.Test, fn)
		inspectExpr(n.Update, fn)
		inspect(n.Body, fn)
	case *ast.IfStatement:
		inspectExpr(n.Test, fn)
		inspect(n.Consequent, fn)
		inspect(n.Alternate, fn)
	case *ast.LabelledStatement:
		inspect(n.Statement, fn)
	case *ast.ReturnStatement:
		inspectExpr(n.Argument, fn)
	case *ast.SwitchStatement:
		inspectExpr(n.Discriminant, fn)
		for _, c := range n.Body {
			inspect(c, fn)
		}
	case *ast.ThrowStatement:
		inspectExpr(n.Argument, fn)
	case *ast.TryStatement:
		inspect(n.Body, fn)
		if n.Catch != nil {
			inspect(n.Catch, fn)
		}
		if n.Finally != nil {
			inspect(n.Finally, fn)
		}
	case *ast.VariableStatement:
		inspectBindings(n.List, fn)
	case *ast.LexicalDeclaration:
		inspectBindings(n.List, fn)
	case *ast.WhileStatement:
		inspectExpr(n.Test, fn)
		inspect(n.Body, fn)
	case *ast.WithStatement:
		inspectExpr(n.Object, fn)
		inspect(n.Body, fn)
	case *ast.FunctionDeclaration:
		inspect(n.Function, fn)
	case *ast.ClassDeclaration:
		inspect(n.Class, fn)

	// expressions
	case *ast.ArrayLiteral:
		for _, e := range n.Value {
			inspectExpr(e, fn)
		}
	case *ast.ArrayPattern:
		for _, e := range n.Elements {
			inspectExpr(e, fn)
		}
		inspectExpr(n.Rest, fn)
	case *ast.AssignExpression:
		inspectExpr(n.Left, fn)
		inspectExpr(n.Right, fn)
	case *ast.AwaitExpression:
		inspectExpr(n.Argument, fn)
	case *ast.YieldExpression:
		inspectExpr(n.Argument, fn)
	case *ast.BinaryExpression:
		inspectExpr(n.Left, fn)
		inspectExpr(n.Right, fn)
	case *ast.Binding:
		inspectExpr(n.Target, fn)
		inspectExpr(n.Initializer, fn)
	case *ast.BracketExpression:
		inspectExpr(n.Left, fn)
		inspectExpr(n.Member, fn)
	case *ast.CallExpression:
		inspectExpr(n.Callee, fn)
		for _, e := range n.ArgumentList {
			inspectExpr(e, fn)
		}
	case *ast.ConditionalExpression:
		inspectExpr(n.Test, fn)
		inspectExpr(n.Consequent, fn)
		inspectExpr(n.Alternate, fn)
	case *ast.DotExpression:
		inspectExpr(n.Left, fn)
	case *ast.PrivateDotExpression:
		inspectExpr(n.Left, fn)
	case *ast.OptionalChain:
		inspectExpr(n.Expression, fn)
	case *ast.Optional:
		inspectExpr(n.Expression, fn)
	case *ast.FunctionLiteral:
		inspectParams(n.ParameterList, fn)
		if n.Body != nil {
			inspect(n.Body, fn)
		}
	case *ast.ArrowFunctionLiteral:
		inspectParams(n.ParameterList, fn)
		switch body := n.Body.(type) {
		case *ast.BlockStatement:
			inspect(body, fn)
		case *ast.ExpressionBody:
			inspectExpr(body.Expression, fn)
		}
	case *ast.ClassLiteral:
		inspectExpr(n.SuperClass, fn)
		for _, el := range n.Body {
			switch el := el.(type) {
			case *ast.FieldDefinition:
				if el.Computed {
					inspectExpr(el.Key, fn)
				}
				inspectExpr(el.Initializer, fn)
			case *ast.MethodDefinition:
				if el.Computed {
					inspectExpr(el.Key, fn)
				}
				if el.Body != nil {
					inspect(el.Body, fn)
				}
			case *ast.ClassStaticBlock:
				if el.Block != nil {
					inspect(el.Block, fn)
				}
			}
		}
	case *ast.NewExpression:
		inspectExpr(n.Callee, fn)
		for _, e := range n.ArgumentList {
			inspectExpr(e, fn)
		}
	case *ast.ObjectLiteral:
		for _, p := range n.Value {
			inspectExpr(p, fn)
		}
	case *ast.ObjectPattern:
		for _, p := range n.Properties {
			inspectExpr(p, fn)
		}
		inspectExpr(n.Rest, fn)
	case *ast.PropertyShort:
		inspectExpr(n.Initializer, fn)
	case *ast.PropertyKeyed:
		if n.Computed {
			inspectExpr(n.Key, fn)
		}
		inspectExpr(n.Value, fn)
	case *ast.SpreadElement:
		inspectExpr(n.Expression, fn)
	case *ast.SequenceExpression:
		for _, e := range n.Sequence {
			inspectExpr(e, fn)
		}
	case *ast.TemplateLiteral:
		inspectExpr(n.Tag, fn)
		for _, e := range n.Expressions {
			inspectExpr(e, fn)
		}
	case *ast.UnaryExpression:
		inspectExpr(n.Operand, fn)
	}
}

func inspectExpr(e ast.Expression, fn func(ast.Node) bool) {
	if e == nil {
		return
	}
	inspect(e, fn)
}

func inspectBindings(list []*ast.Binding, fn func(ast.Node) bool) {
	for _, b := range list {
		inspect(b, fn)
	}
}

func inspectParams(params *ast.ParameterList, fn func(ast.Node) bool) {
	if params == nil {
		return
	}
	inspectBindings(params.List, fn)
	inspectExpr(params.Rest, fn)
}

func inspectInto(into ast.ForInto, fn func(ast.Node) bool) {
	switch into := into.(type) {
	case *ast.ForIntoVar:
		inspect(into.Binding, fn)
	case *ast.ForDeclaration:
		inspectExpr(into.Target, fn)
	case *ast.ForIntoExpression:
		inspectExpr(into.Expression, fn)
	}
}

// isNil catches typed nil pointers stored in interface fields, which the
// parser leaves for absent optional children.
func isNil(node ast.Node) bool {
	if node == nil {
		return true
	}
	switch n := node.(type) {
	case *ast.BlockStatement:
		return n == nil
	case *ast.FunctionLiteral:
		return n == nil
	case *ast.ClassLiteral:
		return n == nil
	case *ast.Identifier:
		return n == nil
	case *ast.CatchStatement:
		return n == nil
	case *ast.Binding:
		return n == nil
	}
	return false
}
