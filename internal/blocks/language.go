package blocks

import "strings"

// PlainText is the store's neutral code language.
const PlainText = "plain text"

var supportedLanguages = map[string]struct{}{}

func init() {
	for _, l := range []string{
		"abap", "abc", "agda", "arduino", "ascii art", "assembly", "bash", "basic",
		"bnf", "c", "c#", "c++", "clojure", "coffeescript", "coq", "css", "dart",
		"dhall", "diff", "docker", "ebnf", "elixir", "elm", "erlang", "f#", "flow",
		"fortran", "gherkin", "glsl", "go", "graphql", "groovy", "haskell", "hcl",
		"html", "idris", "java", "javascript", "json", "julia", "kotlin", "latex",
		"less", "lisp", "livescript", "llvm ir", "lua", "makefile", "markdown",
		"markup", "matlab", "mathematica", "mermaid", "nix", "notion formula",
		"objective-c", "ocaml", "pascal", "perl", "php", "plain text", "powershell",
		"prolog", "protobuf", "purescript", "python", "r", "racket", "reason", "ruby",
		"rust", "sass", "scala", "scheme", "scss", "shell", "smalltalk", "solidity",
		"sql", "swift", "toml", "typescript", "vb.net", "verilog", "vhdl",
		"visual basic", "webassembly", "xml", "yaml", "java/c/c++/c#",
	} {
		supportedLanguages[l] = struct{}{}
	}
}

var languageAliases = map[string]string{
	"http":        PlainText,
	"sh":          "shell",
	"zsh":         "shell",
	"js":          "javascript",
	"jsx":         "javascript",
	"ts":          "typescript",
	"tsx":         "typescript",
	"py":          "python",
	"rb":          "ruby",
	"yml":         "yaml",
	"golang":      "go",
	"rs":          "rust",
	"dockerfile":  "docker",
	"plaintext":   PlainText,
	"text":        PlainText,
	"txt":         PlainText,
	"objective_c": "objective-c",
	"objc":        "objective-c",
	"csharp":      "c#",
	"cs":          "c#",
	"cpp":         "c++",
	"fsharp":      "f#",
	"vbnet":       "vb.net",
}

// NormalizeLanguage maps a language tag onto the store's canonical set. The second
// return value is false when the tag was not recognised and PlainText was substituted.
func NormalizeLanguage(lang string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(lang))
	if key == "" {
		return PlainText, true
	}
	if canonical, ok := languageAliases[key]; ok {
		return canonical, true
	}
	if _, ok := supportedLanguages[key]; ok {
		return key, true
	}
	return PlainText, false
}
