package harvest

import (
	"context"
	"strings"
	"testing"
)

func TestRenderSkeleton_Python(t *testing.T) {
	src := "@register\nclass Widget(Base):\n    def render(self, ctx: Context) -> str:\n        return ''\n\nasync def main() -> None:\n    pass\n"

	got := RenderSkeleton(context.Background(), "python", src)
	want := strings.Join([]string{
		"@register",
		"class Widget(Base):",
		"def render(self, ctx: Context) -> str:",
		"async def main() -> None:",
	}, "\n")
	if got != want {
		t.Errorf("skeleton:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderSkeleton_PythonMultilineParams(t *testing.T) {
	src := "def configure(\n    host: str,\n    port: int = 8080,\n) -> Settings:\n    pass\n"

	got := RenderSkeleton(context.Background(), "python", src)
	want := "def configure( host: str, port: int = 8080, ) -> Settings:"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"(\n    a: int,\n    b: str,\n)", "( a: int, b: str, )"},
		{"  dict[str,\tint]  ", "dict[str, int]"},
		{"()", "()"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := collapseWhitespace(tt.in); got != tt.want {
			t.Errorf("collapseWhitespace(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderSkeleton_PythonFallbackOnSyntaxError(t *testing.T) {
	src := "@deco\ndef broken(:\n    pass\nclass Ok:\n"

	got := RenderSkeleton(context.Background(), "python", src)
	want := "@deco\ndef broken(:\nclass Ok:"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderSkeleton_JSTS(t *testing.T) {
	src := "export class Store extends Base {\nasync function helper(a, b) {\nexport default function App() {\nexport const limit = 10\n"

	got := RenderSkeleton(context.Background(), "typescript", src)
	want := strings.Join([]string{
		"export class Store extends Base { … }",
		"function helper(…) { … }",
		"export class Store …",
		"export default function App …",
		"export const limit …",
	}, "\n")
	if got != want {
		t.Errorf("skeleton:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderSkeleton_CLikeFallback(t *testing.T) {
	src := "int main(void) {\nvoid helper();\nreturn 0;\n"

	got := RenderSkeleton(context.Background(), "", src)
	want := "int main(void)  { … }\nvoid helper(); { … }"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderSkeleton_Dispatch(t *testing.T) {
	tests := []struct {
		name     string
		language string
		src      string
		want     string
	}{
		{"typescriptreact routes to js", "typescriptreact", "export const X = 1\n", "export const X …"},
		{"javascriptreact routes to js", "javascriptreact", "export let y = 2\n", "export let y …"},
		{"empty python source", "python", "", ""},
		{"prose has no headers", "markdown", "# just prose\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderSkeleton(context.Background(), tt.language, tt.src); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
