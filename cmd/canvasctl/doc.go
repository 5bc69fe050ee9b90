// Command canvasctl runs the component pipeline on local files.
//
// Usage:
//
//	canvasctl validate 'components/**/*.jsx'
//	canvasctl compile src/ --out dist/
//	canvasctl run charts/Line.tsx --markup
//	canvasctl deps --deps custom.yaml
//	canvasctl serve --port 8000
//
// Arguments that name an existing file or directory are walked for
// .jsx/.tsx/.js/.ts sources; anything else is a doublestar pattern. Files
// are sniffed and decoded to UTF-8 before they reach the validator.
//
// Exit status is 1 when any file fails.
package main
