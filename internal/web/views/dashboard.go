package views

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/JonMunkholm/stageload/internal/core"
	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/schema"
	"github.com/JonMunkholm/stageload/internal/watch"
	"github.com/a-h/templ"
)

// DashboardData is everything the overview page shows. Watch is nil when
// the watch folder is disabled.
type DashboardData struct {
	GeneratedAt time.Time
	Stats       domain.ManifestStats
	Recent      []domain.Manifest
	Tables      []schema.StagingTable
	Watch       *watch.Status
	Ingests     core.LimiterStatus
}

var statusOrder = []domain.Status{
	domain.StatusCompleted,
	domain.StatusFailed,
	domain.StatusProcessing,
	domain.StatusPending,
}

// Dashboard renders the overview page.
func Dashboard(d DashboardData) templ.Component {
	return page("stageload", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}

		h.raw(`<h1>stageload</h1><p class="muted">Generated `)
		h.text(d.GeneratedAt.Format(time.RFC1123))
		h.raw(`</p>`)

		h.raw(`<div class="cards">`)
		h.raw(`<div class="card"><b>`)
		h.text(formatCount(d.Stats.TotalBatches))
		h.raw(`</b>batches</div><div class="card"><b>`)
		h.text(formatCount(d.Stats.TotalRows))
		h.raw(`</b>rows loaded</div>`)
		for _, st := range statusOrder {
			h.raw(`<div class="card"><b class="s-`)
			h.text(string(st))
			h.raw(`">`)
			h.text(formatCount(d.Stats.ByStatus[st]))
			h.raw(`</b>`)
			h.text(string(st))
			h.raw(`</div>`)
		}
		h.raw(`<div class="card"><b>`)
		h.printf("%d/%d", d.Ingests.Active, d.Ingests.MaxConcurrent)
		h.raw(`</b>active ingests</div></div>`)

		if d.Watch != nil {
			watchSection(h, d.Watch)
		}

		h.raw(`<h2>Recent batches</h2>`)
		if len(d.Recent) == 0 {
			h.raw(`<p class="muted">No files ingested yet.</p>`)
		} else {
			h.raw(`<table><thead><tr><th>File</th><th>Table</th><th>Status</th><th>Rows</th><th>Quality</th><th>Completed</th></tr></thead><tbody>`)
			for _, m := range d.Recent {
				h.raw(`<tr>`)
				h.raw(`<td title="`)
				h.text(m.BatchID.String())
				h.raw(`">`)
				h.text(m.FileName)
				h.raw(`</td>`)
				h.cell(m.TableName)
				h.raw(`<td class="s-`)
				h.text(string(m.Status))
				h.raw(`">`)
				h.text(string(m.Status))
				h.raw(`</td>`)
				h.cell(formatCount(m.ProcessedRecords))
				h.cell(m.DataQuality)
				h.cell(formatTime(m.CompletedAt))
				h.raw(`</tr>`)
			}
			h.raw(`</tbody></table>`)
		}

		h.raw(`<h2>Staging tables</h2>`)
		if len(d.Tables) == 0 {
			h.raw(`<p class="muted">No staging tables.</p>`)
		} else {
			tables := append([]schema.StagingTable(nil), d.Tables...)
			sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
			h.raw(`<table><thead><tr><th>Table</th><th>Estimated rows</th></tr></thead><tbody>`)
			for _, t := range tables {
				h.raw(`<tr>`)
				h.cell(t.Name)
				h.cell(formatCount(t.EstimatedRows))
				h.raw(`</tr>`)
			}
			h.raw(`</tbody></table>`)
		}
		return h.err
	}))
}

func watchSection(h *html, st *watch.Status) {
	h.raw(`<h2>Watch folder</h2><p class="muted">`)
	h.text(st.Root)
	if st.Running {
		h.raw(` &middot; running`)
	} else {
		h.raw(` &middot; stopped`)
	}
	h.raw(` &middot; last poll `)
	h.text(formatTime(st.LastPoll))
	h.raw(`</p><div class="cards">`)
	for _, folder := range []string{watch.FolderUpload, watch.FolderWIP, watch.FolderArchive, watch.FolderError} {
		h.raw(`<div class="card"><b>`)
		h.printf("%d", st.Counts[folder])
		h.raw(`</b>`)
		h.text(folder)
		h.raw(`</div>`)
	}
	h.raw(`<div class="card"><b>`)
	h.printf("%d", st.ProcessedToday)
	h.raw(`</b>processed today</div></div>`)
}
