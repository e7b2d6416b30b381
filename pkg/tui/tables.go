package tui

import (
	"fmt"
	"strings"

	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

// targetRow is one 6DOF entity of any kind.
type targetRow struct {
	Kind    string
	ID      int
	Tracked bool
	Quality float64
	Loc     protocol.Location
	Extra   string
}

func targetRows(f *protocol.Frame) []targetRow {
	var rows []targetRow
	for _, b := range f.Bodies {
		rows = append(rows, targetRow{Kind: "body", ID: b.ID, Tracked: b.IsTracked(), Quality: b.Quality, Loc: b.Loc})
	}
	for _, fs := range f.FlySticks {
		rows = append(rows, targetRow{
			Kind: "flystick", ID: fs.ID, Tracked: fs.IsTracked(), Quality: fs.Quality, Loc: fs.Loc,
			Extra: "buttons " + buttonString(fs.Buttons),
		})
	}
	for _, mt := range f.MeaTools {
		rows = append(rows, targetRow{
			Kind: "meatool", ID: mt.ID, Tracked: mt.IsTracked(), Quality: mt.Quality, Loc: mt.Loc,
			Extra: "buttons " + buttonString(mt.Buttons),
		})
	}
	for _, mr := range f.MeaRefs {
		rows = append(rows, targetRow{Kind: "mearef", ID: mr.ID, Tracked: mr.IsTracked(), Quality: mr.Quality, Loc: mr.Loc})
	}
	for _, h := range f.Hands {
		rows = append(rows, targetRow{
			Kind: "hand", ID: h.ID, Tracked: h.IsTracked(), Quality: h.Quality, Loc: h.Loc,
			Extra: fmt.Sprintf("%s, %d fingers", h.Handedness, len(h.Fingers)),
		})
	}
	for _, h := range f.Humans {
		tracked := 0
		for _, j := range h.Joints {
			if j.IsTracked() {
				tracked++
			}
		}
		rows = append(rows, targetRow{
			Kind: "human", ID: h.ID, Tracked: h.IsTracked(), Quality: -1,
			Extra: fmt.Sprintf("%d/%d joints", tracked, len(h.Joints)),
		})
	}
	for _, in := range f.Inertials {
		rows = append(rows, targetRow{
			Kind: "inertial", ID: in.ID, Tracked: in.IsTracked(), Quality: -1, Loc: in.Loc,
			Extra: in.State.String(),
		})
	}
	return rows
}

func buttonString(buttons []bool) string {
	var sb strings.Builder
	for _, b := range buttons {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

const (
	colKind    = 10
	colID      = 5
	colQuality = 8
	colLoc     = 30
)

func renderTargets(rows []targetRow, maxRows int) string {
	if len(rows) == 0 {
		return dimStyle.Render("no targets in frame")
	}
	out := []string{strings.Join([]string{
		headerCellStyle.Width(colKind).Render("KIND"),
		headerCellStyle.Width(colID).Render("ID"),
		headerCellStyle.Width(colQuality).Render("QUALITY"),
		headerCellStyle.Width(colLoc).Render("LOCATION [mm]"),
		headerCellStyle.Render("INFO"),
	}, "")}
	for i, r := range rows {
		if i == maxRows {
			out = append(out, dimStyle.Render(fmt.Sprintf("%d more", len(rows)-maxRows)))
			break
		}
		style := rowStyle
		quality := fmt.Sprintf("%.3f", r.Quality)
		loc := formatLoc(r.Loc)
		if !r.Tracked {
			style = untrackedStyle
			loc = "not tracked"
		}
		if r.Quality < 0 {
			quality = "-"
		}
		out = append(out, strings.Join([]string{
			style.Width(colKind).Render(r.Kind),
			style.Width(colID).Render(fmt.Sprint(r.ID)),
			style.Width(colQuality).Render(quality),
			style.Width(colLoc).Render(loc),
			style.Render(r.Extra),
		}, ""))
	}
	return strings.Join(out, "\n")
}

func renderMarkers(markers []protocol.Marker, maxRows int) string {
	if len(markers) == 0 {
		return dimStyle.Render("no markers in frame")
	}
	out := []string{strings.Join([]string{
		headerCellStyle.Width(colID).Render("ID"),
		headerCellStyle.Width(colQuality).Render("QUALITY"),
		headerCellStyle.Width(colLoc).Render("LOCATION [mm]"),
	}, "")}
	for i, mk := range markers {
		if i == maxRows {
			out = append(out, dimStyle.Render(fmt.Sprintf("%d more", len(markers)-maxRows)))
			break
		}
		out = append(out, strings.Join([]string{
			rowStyle.Width(colID).Render(fmt.Sprint(mk.ID)),
			rowStyle.Width(colQuality).Render(fmt.Sprintf("%.3f", mk.Quality)),
			rowStyle.Width(colLoc).Render(formatLoc(mk.Loc)),
		}, ""))
	}
	return strings.Join(out, "\n")
}

func renderMessages(msgs []command.Message) string {
	if len(msgs) == 0 {
		return dimStyle.Render("no controller messages")
	}
	out := make([]string, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		style := rowStyle
		if msgs[i].Status == "ERROR" {
			style = errorStyle
		}
		out = append(out, style.Render(msgs[i].String()))
	}
	return strings.Join(out, "\n")
}

func formatLoc(l protocol.Location) string {
	return fmt.Sprintf("%8.1f %8.1f %8.1f", l[0], l[1], l[2])
}
