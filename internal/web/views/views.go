// Package views renders the HTML dashboard as templ components.
package views

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"
)

// page wraps body in the shared layout.
func page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<title>%s</title><style>%s</style></head><body><main>`,
			templ.EscapeString(title), styles); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

const styles = `body{font-family:system-ui,sans-serif;margin:0;background:#f6f7f9;color:#1f2328}` +
	`main{max-width:1100px;margin:0 auto;padding:24px}` +
	`h1{font-size:1.5rem}h2{font-size:1.1rem;margin-top:28px}` +
	`table{width:100%;border-collapse:collapse;background:#fff}` +
	`th,td{text-align:left;padding:6px 10px;border-bottom:1px solid #e3e6ea;font-size:.9rem}` +
	`.cards{display:flex;gap:12px;flex-wrap:wrap}` +
	`.card{background:#fff;border:1px solid #e3e6ea;border-radius:6px;padding:12px 16px;min-width:140px}` +
	`.card b{display:block;font-size:1.4rem}` +
	`.s-COMPLETED{color:#1a7f37}.s-FAILED{color:#cf222e}.s-PROCESSING,.s-PENDING{color:#9a6700}` +
	`.alert{background:#ffebe9;border:1px solid #cf222e;border-radius:6px;padding:12px 16px}` +
	`.muted{color:#656d76}`

// html writes pre-escaped markup.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *html) printf(format string, args ...any) {
	h.text(fmt.Sprintf(format, args...))
}

func (h *html) cell(s string) {
	h.raw("<td>")
	h.text(s)
	h.raw("</td>")
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatCount(n int64) string {
	s := fmt.Sprint(n)
	if n < 0 {
		return s
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}
