package compiler

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// moduleKeywordRe matches import/export used as statements or dynamic
// imports, not the words inside identifiers such as module.exports.
var moduleKeywordRe = regexp.MustCompile(`(?m)^\s*(import|export)\b|\bimport\s*\(`)

func TestCompileUndefinedIntent(t *testing.T) {
	res := New(nil).Compile(`export default function App(){ return <div>{intent}</div>; }`)

	require.False(t, res.Success)
	assert.Empty(t, res.Executable)

	want := []Diagnostic{{
		Kind:    KindUndefinedIdentifier,
		Name:    "intent",
		Message: "'intent' is not defined",
		Line:    1,
		Column:  45,
	}}
	if diff := cmp.Diff(want, res.Diagnostics); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Line 1, Col 45: 'intent' is not defined", res.Diagnostics[0].String())
}

func TestCompileUnsupportedDependencies(t *testing.T) {
	src := `import React, { useEffect } from 'react';
import axios from 'axios';
import _ from 'lodash';

export default function App() {
  useEffect(() => { axios.get('/x'); }, []);
  return <div>{_.size([1, 2])}</div>;
}`

	res := New(nil).Compile(src)
	require.False(t, res.Success)
	require.Len(t, res.Diagnostics, 2)

	assert.Equal(t, KindUnsupportedDependency, res.Kind())
	assert.Equal(t, "axios", res.Diagnostics[0].Name)
	assert.Equal(t, 2, res.Diagnostics[0].Line)
	assert.Equal(t, "lodash", res.Diagnostics[1].Name)
	assert.Equal(t, 3, res.Diagnostics[1].Line)

	report := res.Error()
	assert.Contains(t, report, "  - axios")
	assert.Contains(t, report, "  - lodash")
	assert.Contains(t, report, "Recharts")
}

func TestCompileUnsupportedDependencyIdentity(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "scoped subpath reduces to scope and name",
			src:  "import x from '@org/x/y';\nexport default function App() { return <div>{String(x)}</div>; }",
			want: []string{"@org/x"},
		},
		{
			name: "unscoped subpath reduces to package",
			src:  "import fp from 'lodash/fp';\nexport default function App() { return <div>{String(fp)}</div>; }",
			want: []string{"lodash"},
		},
		{
			name: "same package twice reported once",
			src:  "import a from 'd3';\nimport { scaleLinear } from 'd3/scale';\nexport default function App() { return <div>{String(a)}{String(scaleLinear)}</div>; }",
			want: []string{"d3"},
		},
		{
			name: "require call",
			src:  "const moment = require('moment');\nexport default function App() { return <div>{moment().format()}</div>; }",
			want: []string{"moment"},
		},
		{
			name: "dynamic import",
			src:  "export default function App() { import('three'); return <div/>; }",
			want: []string{"three"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(nil).Compile(tt.src)
			require.False(t, res.Success)

			var names []string
			for _, d := range res.Diagnostics {
				assert.Equal(t, KindUnsupportedDependency, d.Kind)
				names = append(names, d.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestCompileRoundTrip(t *testing.T) {
	src := `import React, { useState } from 'react';
import { LineChart, Line } from 'recharts';
import { motion } from 'framer-motion';
import { Heart } from 'lucide-react';

interface Point { x: number; y: number }

export default function Dashboard() {
  const [n, setN] = useState<number>(0);
  const data: Point[] = [{ x: 1, y: n }];
  return (
    <motion.div onClick={() => setN(n + 1)}>
      <Heart size={16} />
      <LineChart width={200} height={100} data={data}>
        <Line dataKey="y" />
      </LineChart>
    </motion.div>
  );
}`

	res := New(nil).Compile(src)
	require.True(t, res.Success, res.Error())
	assert.Empty(t, res.Diagnostics)

	exe := res.Executable
	assert.False(t, moduleKeywordRe.MatchString(exe), "residual module syntax in:\n%s", exe)
	assert.NotContains(t, exe, `require("`)
	assert.NotContains(t, exe, "interface")
	assert.Contains(t, exe, "window.React")
	assert.Contains(t, exe, "window.Recharts")
	assert.Contains(t, exe, "window.FramerMotion")
	assert.Contains(t, exe, "window.LucideIcons")
	assert.Contains(t, exe, "typeof Dashboard !== 'undefined' ? Dashboard")
	assert.Contains(t, exe, "document.getElementById('root')")
	assert.Contains(t, exe, "type: 'executionReady'")
	assert.Contains(t, exe, "type: 'executionError'")
}

func TestCompileLowersDynamicImport(t *testing.T) {
	src := `export default function App() {
  import('react').then((m) => m.default);
  return <div/>;
}`

	res := New(nil).Compile(src)
	require.True(t, res.Success, res.Error())
	assert.False(t, moduleKeywordRe.MatchString(res.Executable), "residual module syntax in:\n%s", res.Executable)
	assert.NotContains(t, res.Executable, `require("`)
	assert.Contains(t, res.Executable, "window.React")
}

func TestCompileResolvesScopes(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "allowlisted hooks without import",
			src:  "export default function App() { const [a] = useState(0); useEffect(() => {}, []); return <div>{a}</div>; }",
		},
		{
			name: "destructured params with defaults",
			src:  "export default function App({ title, items = [], ...rest }) { return <ul title={title}>{items.map((it, i) => <li key={i}>{it}</li>)}{Object.keys(rest).length}</ul>; }",
		},
		{
			name: "hoisted var and function",
			src:  "export default function App() { total = 2; var total; return <div>{double(total)}</div>; }\nfunction double(n) { return n * 2; }",
		},
		{
			name: "catch parameter and loop bindings",
			src:  "export default function App() { let s = 0; for (const v of [1, 2]) { s += v; } for (let i = 0; i < 2; i++) { s += i; } try { JSON.parse('x'); } catch (err) { console.log(err); } return <div>{s}</div>; }",
		},
		{
			name: "named function expression recursion",
			src:  "const fact = function f(n) { return n <= 1 ? 1 : n * f(n - 1); };\nexport default function App() { return <div>{fact(4)}</div>; }",
		},
		{
			name: "class component",
			src:  "export default class Counter extends React.Component {\n  constructor(props) { super(props); this.state = { n: 1 }; }\n  render() { return <svg><circle r={this.state.n} /></svg>; }\n}",
		},
		{
			name: "locally defined primitive used as tag",
			src:  "export default function App() { return <Card>hi</Card>; }\nconst Card = ({ children }) => <section>{children}</section>;",
		},
		{
			name: "labels are not references",
			src:  "export default function App() { outer: for (const a of [1]) { for (const b of [2]) { if (a < b) break outer; } } return <div/>; }",
		},
		{
			name: "destructuring assignment to declared names",
			src:  "export default function App() { let a, b; [a, b] = [1, 2]; ({ a } = { a: 3 }); return <div>{a + b}</div>; }",
		},
		{
			name: "arguments inside function",
			src:  "function sum() { return Array.from(arguments).reduce((x, y) => x + y, 0); }\nexport default function App() { return <div>{sum(1, 2)}</div>; }",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(nil).Compile(tt.src)
			assert.True(t, res.Success, res.Error())
		})
	}
}

func TestCompileReportsUndefined(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		names []string
	}{
		{
			name:  "undefined component tag",
			src:   "export default function App() { return <Chart />; }",
			names: []string{"Chart"},
		},
		{
			name:  "block scoped binding used outside its block",
			src:   "export default function App() { if (true) { let hidden = 1; } return <div>{hidden}</div>; }",
			names: []string{"hidden"},
		},
		{
			name:  "attribute expression",
			src:   "export default function App() { return <div style={styles.box}>{label}</div>; }",
			names: []string{"styles", "label"},
		},
		{
			name:  "same name twice on different lines",
			src:   "export default function App() {\n  console.log(missing);\n  return <div>{missing}</div>;\n}",
			names: []string{"missing", "missing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(nil).Compile(tt.src)
			require.False(t, res.Success)
			assert.Equal(t, KindUndefinedIdentifier, res.Kind())

			var names []string
			for _, d := range res.Diagnostics {
				names = append(names, d.Name)
			}
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestCompileParseError(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		line   int
		column int
		text   string
	}{
		{
			name:   "mismatched closing tag",
			src:    "export default function App() {\n  return <div></span>;\n}",
			line:   2,
			column: 17,
			text:   `Unexpected closing "span" tag`,
		},
		{
			name:   "stray brace in markup",
			src:    "export default function App() {\n  return <div>;\n}",
			line:   3,
			column: 1,
			text:   `The character "}" is not valid inside a JSX element`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(nil).Compile(tt.src)

			require.False(t, res.Success)
			require.NotEmpty(t, res.Diagnostics)
			d := res.Diagnostics[0]
			assert.Equal(t, KindParseError, d.Kind)
			assert.Equal(t, tt.line, d.Line)
			assert.Equal(t, tt.column, d.Column)
			assert.Contains(t, d.Message, tt.text)
			assert.True(t, strings.HasPrefix(d.String(), fmt.Sprintf("Line %d, Col %d: ", tt.line, tt.column)))
		})
	}
}

func TestCompileSourceTooLong(t *testing.T) {
	c := New(nil)
	_, err := c.CompileSource(strings.Repeat("a", MaxSourceBytes+1))
	assert.ErrorIs(t, err, ErrSourceTooLong)

	res := c.Compile(strings.Repeat("a", MaxSourceBytes+1))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Diagnostics)
}

func TestCompileIsDeterministic(t *testing.T) {
	src := "import { BarChart } from 'recharts';\nexport default function App() { return <BarChart data={[]} />; }"
	c := New(nil)
	first := c.Compile(src)
	require.True(t, first.Success, first.Error())
	assert.Equal(t, first, c.Compile(src))
}

func TestComponentName(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"export default function Weather() {}", "Weather"},
		{"export default async function Loader() {}", "Loader"},
		{"export default class Chart extends React.Component {}", "Chart"},
		{"const Page = () => null;\nexport default Page;", EntryPoint},
		{"function Helper() {}\nexport default () => null;", EntryPoint},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ComponentName(tt.src))
		})
	}
}

func TestWrapResolutionOrder(t *testing.T) {
	out := wrap("function Weather() {}", "Weather")
	named := strings.Index(out, "typeof Weather")
	entry := strings.Index(out, "typeof App")
	alias := strings.Index(out, DefaultAlias+";")
	require.True(t, named >= 0 && entry >= 0 && alias >= 0)
	assert.Less(t, named, entry)
	assert.Less(t, entry, alias)
	assert.Contains(t, out, errNoComponent)
	assert.Contains(t, out, errReactMissing)

	// no duplicate branch when the name is the entry point
	assert.Equal(t, 1, strings.Count(wrap("", EntryPoint), "typeof App"))
}

func TestRenderReport(t *testing.T) {
	diags := []Diagnostic{
		{Kind: KindUndefinedIdentifier, Name: "a", Line: 1, Column: 2},
		{Kind: KindUndefinedIdentifier, Name: "b", Line: 3, Column: 4},
	}
	report := RenderReport(diags)
	assert.True(t, strings.HasPrefix(report, "Line 1, Col 2: 'a' is not defined\nLine 3, Col 4: 'b' is not defined\n"))
	assert.Contains(t, report, Remediation(KindUndefinedIdentifier))

	assert.Empty(t, RenderReport(nil))
	assert.Empty(t, Remediation(KindParseError))
	assert.Equal(t, "Line 2, Col 1: Unexpected token", RenderReport([]Diagnostic{{Kind: KindParseError, Message: "Unexpected token", Line: 2, Column: 1}}))
}

func TestDedupe(t *testing.T) {
	in := []Diagnostic{
		{Kind: KindUndefinedIdentifier, Name: "x", Line: 1, Column: 1},
		{Kind: KindUndefinedIdentifier, Name: "x", Line: 1, Column: 1},
		{Kind: KindUndefinedIdentifier, Name: "x", Line: 2, Column: 1},
		{Kind: KindParseError, Message: "bad", Line: 2, Column: 1},
	}
	assert.Len(t, dedupe(in), 3)
}

func TestCachedCompiler(t *testing.T) {
	cc, err := NewCached(New(nil), 4)
	require.NoError(t, err)

	src := "export default function App() { return <div>ok</div>; }"

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cc.Compile(src)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
	assert.True(t, results[0].Success)
	assert.Equal(t, 1, cc.Len())

	_, err = cc.CompileSource(strings.Repeat("x", MaxSourceBytes+1))
	assert.ErrorIs(t, err, ErrSourceTooLong)

	cc.Purge()
	assert.Equal(t, 0, cc.Len())
}
