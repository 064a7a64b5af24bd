// Package pages renders the HTML dashboard using the element builder.
package pages

import (
	"fmt"
	"time"

	"binder/models"
	"binder/syncer"

	"github.com/rohanthewiz/element"
)

var (
	tree   *models.Tree
	engine *syncer.Engine
)

// Init wires the pages to the live tree and engine.
func Init(t *models.Tree, e *syncer.Engine) {
	tree = t
	engine = e
}

// StatusPage renders the sync dashboard: engine state, hierarchy
// counts, and any nodes needing attention.
type StatusPage struct {
	Title string
}

func (p StatusPage) Render() string {
	b := element.NewBuilder()
	status := engine.Status.Current()
	attention := tree.AttentionNodes()

	b.Html().R(
		b.Head().R(
			b.Title().T(p.Title),
			b.Style().T(`
				body { font-family: sans-serif; margin: 2rem; background: #fafaf7; }
				h1 { font-size: 1.4rem; }
				.state { display: inline-block; padding: 0.2rem 0.6rem; border-radius: 4px; color: #fff; }
				.state.idle { background: #2e7d32; }
				.state.syncing { background: #1565c0; }
				.state.error { background: #c62828; }
				table { border-collapse: collapse; margin-top: 1rem; }
				td, th { border: 1px solid #ccc; padding: 0.3rem 0.8rem; text-align: left; }
			`),
		),
		b.Body().R(
			b.H1().T(p.Title),
			b.P().R(
				b.T("Engine state: "),
				b.Span("class", "state "+string(status.State)).T(string(status.State)),
			),
			b.P().T(fmt.Sprintf("Nodes: %d", tree.NodeCount())),
			b.P().T("Last successful sync: "+formatTime(status.LastSyncAt)),
			b.Wrap(func() {
				if status.LastError != "" {
					b.P().T("Last error: " + status.LastError)
				}
			}),
			b.H1().T("Needs attention"),
			b.Wrap(func() {
				if len(attention) == 0 {
					b.P().T("Nothing — all nodes synchronized.")
					return
				}
				b.Table().R(
					b.Tr().R(
						b.Th().T("Name"),
						b.Th().T("Kind"),
						b.Th().T("Problem"),
					),
					b.Wrap(func() {
						for _, n := range attention {
							b.Tr().R(
								b.Td().T(n.Name),
								b.Td().T(string(n.Kind)),
								b.Td().T(n.Attention),
							)
						}
					}),
				)
			}),
		),
	)
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
