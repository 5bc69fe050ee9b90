package compiler

import (
	"fmt"

	"github.com/dop251/goja/ast"
)

// scope is one lexical environment. Function scopes also receive hoisted
// var declarations.
type scope struct {
	parent *scope
	names  map[string]struct{}
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, names: make(map[string]struct{})}
}

func (s *scope) declare(name string) {
	s.names[name] = struct{}{}
}

func (s *scope) resolves(name string) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.names[name]; ok {
			return true
		}
	}
	return false
}

// resolver finds references that no enclosing scope binds and that are not
// provided by the sandbox.
type resolver struct {
	positions *positions
	diags     []Diagnostic
}

// scanIdentifiers returns an UndefinedIdentifier diagnostic for every
// unresolved reference, deduplicated by name and position.
func scanIdentifiers(u *unit) []Diagnostic {
	r := &resolver{positions: u.positions}
	top := newScope(nil)
	r.body(top, u.program.Body)
	return dedupe(r.diags)
}

func (r *resolver) reference(s *scope, id *ast.Identifier) {
	if id == nil {
		return
	}
	name := id.Name.String()
	if s.resolves(name) || Allowed(name) {
		return
	}
	if _, ok := wrapperBindings[name]; ok {
		return
	}
	line, col, ok := r.positions.original(id.Idx)
	if !ok {
		return
	}
	r.diags = append(r.diags, Diagnostic{
		Kind:    KindUndefinedIdentifier,
		Name:    name,
		Message: fmt.Sprintf("'%s' is not defined", name),
		Line:    line,
		Column:  col,
	})
}

// body handles a function or program body: hoisted vars and top-level
// lexical declarations are bound before any statement runs.
func (r *resolver) body(s *scope, list []ast.Statement) {
	for _, st := range list {
		hoistVars(s, st)
	}
	declareLexical(s, list)
	for _, st := range list {
		r.statement(s, st)
	}
}

func (r *resolver) block(s *scope, list []ast.Statement) {
	bs := newScope(s)
	declareLexical(bs, list)
	for _, st := range list {
		r.statement(bs, st)
	}
}

func (r *resolver) statement(s *scope, st ast.Statement) {
	switch n := st.(type) {
	case nil:
	case *ast.BlockStatement:
		if n != nil {
			r.block(s, n.List)
		}
	case *ast.ExpressionStatement:
		r.expr(s, n.Expression)
	case *ast.VariableStatement:
		r.bindings(s, n.List)
	case *ast.LexicalDeclaration:
		r.bindings(s, n.List)
	case *ast.FunctionDeclaration:
		r.function(s, n.Function, false)
	case *ast.ClassDeclaration:
		r.class(s, n.Class)
	case *ast.IfStatement:
		r.expr(s, n.Test)
		r.statement(s, n.Consequent)
		r.statement(s, n.Alternate)
	case *ast.WhileStatement:
		r.expr(s, n.Test)
		r.statement(s, n.Body)
	case *ast.DoWhileStatement:
		r.statement(s, n.Body)
		r.expr(s, n.Test)
	case *ast.ReturnStatement:
		r.expr(s, n.Argument)
	case *ast.ThrowStatement:
		r.expr(s, n.Argument)
	case *ast.LabelledStatement:
		r.statement(s, n.Statement)
	case *ast.WithStatement:
		r.expr(s, n.Object)
		r.statement(s, n.Body)
	case *ast.SwitchStatement:
		r.expr(s, n.Discriminant)
		cs := newScope(s)
		for _, c := range n.Body {
			declareLexical(cs, c.Consequent)
		}
		for _, c := range n.Body {
			r.expr(cs, c.Test)
			for _, st := range c.Consequent {
				r.statement(cs, st)
			}
		}
	case *ast.ForStatement:
		ls := newScope(s)
		switch init := n.Initializer.(type) {
		case *ast.ForLoopInitializerExpression:
			r.expr(ls, init.Expression)
		case *ast.ForLoopInitializerVarDeclList:
			r.bindings(ls, init.List)
		case *ast.ForLoopInitializerLexicalDecl:
			for _, b := range init.LexicalDeclaration.List {
				declarePattern(ls, b.Target)
			}
			r.bindings(ls, init.LexicalDeclaration.List)
		}
		r.expr(ls, n.Test)
		r.expr(ls, n.Update)
		r.statement(ls, n.Body)
	case *ast.ForInStatement:
		ls := newScope(s)
		r.into(ls, n.Into)
		r.expr(ls, n.Source)
		r.statement(ls, n.Body)
	case *ast.ForOfStatement:
		ls := newScope(s)
		r.into(ls, n.Into)
		r.expr(ls, n.Source)
		r.statement(ls, n.Body)
	case *ast.TryStatement:
		if n.Body != nil {
			r.block(s, n.Body.List)
		}
		if n.Catch != nil {
			cs := newScope(s)
			if n.Catch.Parameter != nil {
				declarePattern(cs, n.Catch.Parameter)
				r.pattern(cs, n.Catch.Parameter, true)
			}
			if n.Catch.Body != nil {
				r.block(cs, n.Catch.Body.List)
			}
		}
		if n.Finally != nil {
			r.block(s, n.Finally.List)
		}
	}
}

func (r *resolver) into(s *scope, into ast.ForInto) {
	switch n := into.(type) {
	case *ast.ForIntoVar:
		if n.Binding != nil {
			r.pattern(s, n.Binding.Target, true)
			r.expr(s, n.Binding.Initializer)
		}
	case *ast.ForDeclaration:
		declarePattern(s, n.Target)
		r.pattern(s, n.Target, true)
	case *ast.ForIntoExpression:
		r.pattern(s, n.Expression, false)
	}
}

// bindings visits declarators. Names were already declared by hoisting or
// lexical collection, so only defaults and initializers are references.
func (r *resolver) bindings(s *scope, list []*ast.Binding) {
	for _, b := range list {
		r.pattern(s, b.Target, true)
		r.expr(s, b.Initializer)
	}
}

// pattern walks a binding or assignment target. When bind is set the
// identifiers are declarations; otherwise they are references being
// assigned to.
func (r *resolver) pattern(s *scope, e ast.Expression, bind bool) {
	switch n := e.(type) {
	case nil:
	case *ast.Identifier:
		if !bind {
			r.reference(s, n)
		}
	case *ast.ArrayPattern:
		for _, el := range n.Elements {
			r.pattern(s, el, bind)
		}
		r.pattern(s, n.Rest, bind)
	case *ast.ObjectPattern:
		for _, p := range n.Properties {
			switch p := p.(type) {
			case *ast.PropertyShort:
				if !bind {
					r.reference(s, &p.Name)
				}
				r.expr(s, p.Initializer)
			case *ast.PropertyKeyed:
				if p.Computed {
					r.expr(s, p.Key)
				}
				r.pattern(s, p.Value, bind)
			case *ast.SpreadElement:
				r.pattern(s, p.Expression, bind)
			}
		}
		r.pattern(s, n.Rest, bind)
	case *ast.AssignExpression:
		r.pattern(s, n.Left, bind)
		r.expr(s, n.Right)
	default:
		r.expr(s, e)
	}
}

func (r *resolver) expr(s *scope, e ast.Expression) {
	switch n := e.(type) {
	case nil:
	case *ast.Identifier:
		r.reference(s, n)
	case *ast.ArrayLiteral:
		for _, v := range n.Value {
			r.expr(s, v)
		}
	case *ast.ObjectLiteral:
		for _, p := range n.Value {
			switch p := p.(type) {
			case *ast.PropertyShort:
				r.reference(s, &p.Name)
				r.expr(s, p.Initializer)
			case *ast.PropertyKeyed:
				if p.Computed {
					r.expr(s, p.Key)
				}
				r.expr(s, p.Value)
			case *ast.SpreadElement:
				r.expr(s, p.Expression)
			}
		}
	case *ast.ArrayPattern, *ast.ObjectPattern:
		r.pattern(s, n, false)
	case *ast.AssignExpression:
		r.pattern(s, n.Left, false)
		r.expr(s, n.Right)
	case *ast.BinaryExpression:
		r.expr(s, n.Left)
		r.expr(s, n.Right)
	case *ast.ConditionalExpression:
		r.expr(s, n.Test)
		r.expr(s, n.Consequent)
		r.expr(s, n.Alternate)
	case *ast.UnaryExpression:
		r.expr(s, n.Operand)
	case *ast.SequenceExpression:
		for _, v := range n.Sequence {
			r.expr(s, v)
		}
	case *ast.CallExpression:
		r.expr(s, n.Callee)
		for _, a := range n.ArgumentList {
			r.expr(s, a)
		}
	case *ast.NewExpression:
		r.expr(s, n.Callee)
		for _, a := range n.ArgumentList {
			r.expr(s, a)
		}
	case *ast.DotExpression:
		r.expr(s, n.Left)
	case *ast.PrivateDotExpression:
		r.expr(s, n.Left)
	case *ast.BracketExpression:
		r.expr(s, n.Left)
		r.expr(s, n.Member)
	case *ast.OptionalChain:
		r.expr(s, n.Expression)
	case *ast.Optional:
		r.expr(s, n.Expression)
	case *ast.TemplateLiteral:
		r.expr(s, n.Tag)
		for _, v := range n.Expressions {
			r.expr(s, v)
		}
	case *ast.SpreadElement:
		r.expr(s, n.Expression)
	case *ast.AwaitExpression:
		r.expr(s, n.Argument)
	case *ast.YieldExpression:
		r.expr(s, n.Argument)
	case *ast.FunctionLiteral:
		r.function(s, n, true)
	case *ast.ArrowFunctionLiteral:
		r.arrow(s, n)
	case *ast.ClassLiteral:
		r.class(s, n)
	}
}

// function binds the parameters, arguments and, for expressions, the
// function's own name in a fresh scope.
func (r *resolver) function(s *scope, fn *ast.FunctionLiteral, expression bool) {
	if fn == nil {
		return
	}
	fs := newScope(s)
	if expression && fn.Name != nil {
		fs.declare(fn.Name.Name.String())
	}
	fs.declare("arguments")
	r.params(fs, fn.ParameterList)
	if fn.Body != nil {
		r.body(fs, fn.Body.List)
	}
}

func (r *resolver) arrow(s *scope, fn *ast.ArrowFunctionLiteral) {
	fs := newScope(s)
	r.params(fs, fn.ParameterList)
	switch b := fn.Body.(type) {
	case *ast.BlockStatement:
		r.body(fs, b.List)
	case *ast.ExpressionBody:
		r.expr(fs, b.Expression)
	}
}

func (r *resolver) params(s *scope, params *ast.ParameterList) {
	if params == nil {
		return
	}
	for _, b := range params.List {
		declarePattern(s, b.Target)
	}
	if params.Rest != nil {
		declarePattern(s, params.Rest)
	}
	r.bindings(s, params.List)
	r.pattern(s, params.Rest, true)
}

func (r *resolver) class(s *scope, cls *ast.ClassLiteral) {
	if cls == nil {
		return
	}
	cs := newScope(s)
	if cls.Name != nil {
		cs.declare(cls.Name.Name.String())
	}
	r.expr(s, cls.SuperClass)
	for _, el := range cls.Body {
		switch el := el.(type) {
		case *ast.FieldDefinition:
			if el.Computed {
				r.expr(cs, el.Key)
			}
			r.expr(cs, el.Initializer)
		case *ast.MethodDefinition:
			if el.Computed {
				r.expr(cs, el.Key)
			}
			r.function(cs, el.Body, false)
		case *ast.ClassStaticBlock:
			if el.Block != nil {
				r.body(newScope(cs), el.Block.List)
			}
		}
	}
}

// hoistVars declares every var-bound name in st, descending into nested
// blocks but not into functions or classes.
func hoistVars(s *scope, st ast.Statement) {
	switch n := st.(type) {
	case *ast.VariableStatement:
		for _, b := range n.List {
			declarePattern(s, b.Target)
		}
	case *ast.BlockStatement:
		if n == nil {
			return
		}
		for _, c := range n.List {
			hoistVars(s, c)
		}
	case *ast.IfStatement:
		hoistVars(s, n.Consequent)
		hoistVars(s, n.Alternate)
	case *ast.WhileStatement:
		hoistVars(s, n.Body)
	case *ast.DoWhileStatement:
		hoistVars(s, n.Body)
	case *ast.LabelledStatement:
		hoistVars(s, n.Statement)
	case *ast.WithStatement:
		hoistVars(s, n.Body)
	case *ast.ForStatement:
		if init, ok := n.Initializer.(*ast.ForLoopInitializerVarDeclList); ok {
			for _, b := range init.List {
				declarePattern(s, b.Target)
			}
		}
		hoistVars(s, n.Body)
	case *ast.ForInStatement:
		if v, ok := n.Into.(*ast.ForIntoVar); ok && v.Binding != nil {
			declarePattern(s, v.Binding.Target)
		}
		hoistVars(s, n.Body)
	case *ast.ForOfStatement:
		if v, ok := n.Into.(*ast.ForIntoVar); ok && v.Binding != nil {
			declarePattern(s, v.Binding.Target)
		}
		hoistVars(s, n.Body)
	case *ast.SwitchStatement:
		for _, c := range n.Body {
			for _, st := range c.Consequent {
				hoistVars(s, st)
			}
		}
	case *ast.TryStatement:
		hoistVars(s, n.Body)
		if n.Catch != nil {
			hoistVars(s, n.Catch.Body)
		}
		hoistVars(s, n.Finally)
	}
}

// declareLexical binds the let, const, class and function declarations that
// appear directly in list.
func declareLexical(s *scope, list []ast.Statement) {
	for _, st := range list {
		switch n := st.(type) {
		case *ast.LexicalDeclaration:
			for _, b := range n.List {
				declarePattern(s, b.Target)
			}
		case *ast.FunctionDeclaration:
			if n.Function != nil && n.Function.Name != nil {
				s.declare(n.Function.Name.Name.String())
			}
		case *ast.ClassDeclaration:
			if n.Class != nil && n.Class.Name != nil {
				s.declare(n.Class.Name.Name.String())
			}
		}
	}
}

// declarePattern binds every name introduced by a binding target.
func declarePattern(s *scope, e ast.Expression) {
	switch n := e.(type) {
	case *ast.Identifier:
		s.declare(n.Name.String())
	case *ast.ArrayPattern:
		for _, el := range n.Elements {
			declarePattern(s, el)
		}
		declarePattern(s, n.Rest)
	case *ast.ObjectPattern:
		for _, p := range n.Properties {
			switch p := p.(type) {
			case *ast.PropertyShort:
				s.declare(p.Name.Name.String())
			case *ast.PropertyKeyed:
				declarePattern(s, p.Value)
			case *ast.SpreadElement:
				declarePattern(s, p.Expression)
			}
		}
		declarePattern(s, n.Rest)
	case *ast.AssignExpression:
		declarePattern(s, n.Left)
	}
}
