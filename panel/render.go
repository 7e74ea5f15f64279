package panel

import (
	"fmt"
	"strings"

	"github.com/dshills/settle/schema"
	"github.com/dshills/settle/store"
)

func (p *Panel) render() {
	snap := p.store.State()
	p.buildRows(snap)
	p.clampSel()

	b := p.backend
	b.Clear()
	w, h := b.Size()

	p.drawHeader(w)

	listTop := 2
	listBottom := h - 2
	if visible := listBottom - listTop; visible > 0 {
		p.scrollTo(visible)
	}
	y := listTop
	for i := p.top; i < len(p.rows) && y < listBottom; i++ {
		p.drawRow(i, y, w, snap)
		y++
	}

	p.drawFooter(w, h, snap)
	if snap.PendingConfirm != nil {
		p.drawConfirm(w, h, snap.PendingConfirm)
	}
	b.Show()
}

// buildRows flattens the current page into render rows, skipping
// settings hidden by their visibility conditions.
func (p *Panel) buildRows(snap store.Snapshot) {
	p.rows = p.rows[:0]
	if p.pageIdx < 0 || p.pageIdx >= len(p.pages) {
		return
	}
	page := p.pages[p.pageIdx]
	for i := range page.Sections {
		p.addSection(&page.Sections[i], snap)
	}
}

func (p *Panel) addSection(sec *schema.Section, snap store.Snapshot) {
	p.rows = append(p.rows, row{kind: rowSection, text: sec.Title})
	for i := range sec.Settings {
		st := &sec.Settings[i]
		if !schema.Visible(st, snap.Values) {
			continue
		}
		// Multi-action settings render one row per sub-action.
		if st.Kind == schema.KindAction && len(st.Actions) > 0 {
			for j := range st.Actions {
				if e := p.index.Get(st.Actions[j].Key); e != nil {
					p.rows = append(p.rows, row{kind: rowSetting, entry: e})
				}
			}
			continue
		}
		if e := p.index.Get(st.Key); e != nil {
			p.rows = append(p.rows, row{kind: rowSetting, entry: e})
		}
	}
	for i := range sec.Sections {
		p.addSection(&sec.Sections[i], snap)
	}
}

func (p *Panel) clampSel() {
	if len(p.rows) == 0 {
		p.sel = 0
		return
	}
	if p.sel >= len(p.rows) {
		p.sel = len(p.rows) - 1
	}
	if p.sel < 0 {
		p.sel = 0
	}
	if p.rows[p.sel].kind == rowSetting {
		return
	}
	for i := p.sel; i < len(p.rows); i++ {
		if p.rows[i].kind == rowSetting {
			p.sel = i
			return
		}
	}
	for i := p.sel; i >= 0; i-- {
		if p.rows[i].kind == rowSetting {
			p.sel = i
			return
		}
	}
}

func (p *Panel) scrollTo(visible int) {
	if p.sel < p.top {
		p.top = p.sel
	}
	if p.sel >= p.top+visible {
		p.top = p.sel - visible + 1
	}
	if p.top < 0 {
		p.top = 0
	}
}

func (p *Panel) drawHeader(w int) {
	x := 0
	for i, pg := range p.pages {
		label := " " + pg.Title + " "
		style := StyleMuted
		if i == p.pageIdx {
			style = StyleSelected
		}
		p.drawText(x, 0, w, label, style)
		x += len([]rune(label)) + 1
	}
}

func (p *Panel) drawRow(i, y, w int, snap store.Snapshot) {
	r := p.rows[i]
	if r.kind == rowSection {
		p.drawText(0, y, w, r.text, StyleTitle)
		return
	}

	e := r.entry
	st := e.Setting
	key := e.Key()

	title := st.Title
	if e.Sub != nil && e.Sub.Label != "" {
		title = e.Sub.Label
	}

	style := StyleDefault
	switch {
	case i == p.sel:
		style = StyleSelected
	case st.Dangerous:
		style = StyleDanger
	case st.Disabled || st.ReadOnly:
		style = StyleMuted
	}

	var value string
	switch {
	case e.IsAction():
		label := st.ButtonLabel
		if e.Sub != nil {
			label = e.Sub.Label
		}
		if label == "" {
			label = title
		}
		value = "[ " + label + " ]"
	case p.editing && p.editKey == key:
		value = p.editBuf + "▏"
	case st.Kind == schema.KindBoolean:
		if schema.Truthy(snap.Values[key]) {
			value = "[x]"
		} else {
			value = "[ ]"
		}
	default:
		value = valueText(snap.Values[key])
	}

	line := fmt.Sprintf("  %-28s %s", title, value)
	p.drawText(0, y, w, line, style)
	x := len([]rune(line)) + 2

	if badge, bstyle, ok := saveBadge(key, snap); ok {
		p.drawText(x, y, w, badge, bstyle)
		x += len([]rune(badge)) + 2
	}
	if msg := snap.Errors[key]; msg != "" {
		p.drawText(x, y, w, "✗ "+msg, StyleError)
	}
}

func saveBadge(key string, snap store.Snapshot) (string, Style, bool) {
	if snap.ActionLoading[key] {
		return "…", StyleSaving, true
	}
	switch snap.SaveStatus[key] {
	case store.SaveSaving:
		return "…saving", StyleSaving, true
	case store.SaveSaved:
		return "✓ saved", StyleSaved, true
	case store.SaveError:
		return "✗ save failed", StyleError, true
	}
	return "", StyleDefault, false
}

func (p *Panel) drawFooter(w, h int, snap store.Snapshot) {
	var hint string
	switch {
	case snap.PendingConfirm != nil:
		hint = "enter confirm   esc cancel"
	case p.editing:
		hint = "enter apply   esc cancel"
	default:
		hint = "↑/↓ move   ←/→ page   enter edit/toggle/run   q quit"
	}
	p.drawText(0, h-1, w, hint, StyleMuted)
}

func (p *Panel) drawConfirm(w, h int, c *store.Confirm) {
	width := min(56, w-4)
	if width < 20 {
		width = w
	}

	title := c.Config.Title
	if title == "" {
		title = "Confirm"
	}
	confirmLabel := c.Config.ConfirmLabel
	if confirmLabel == "" {
		confirmLabel = "Confirm"
	}
	cancelLabel := c.Config.CancelLabel
	if cancelLabel == "" {
		cancelLabel = "Cancel"
	}

	lines := []string{title, ""}
	lines = append(lines, wrapText(c.Config.Message, width-4)...)
	if c.Config.RequireText != "" {
		lines = append(lines, "",
			fmt.Sprintf("Type %q to confirm: %s_", c.Config.RequireText, p.confirmTyped))
	}
	lines = append(lines, "", "[Enter] "+confirmLabel+"   [Esc] "+cancelLabel)

	height := len(lines) + 2
	x0 := (w - width) / 2
	y0 := (h - height) / 2
	if y0 < 0 {
		y0 = 0
	}

	for y := y0; y < y0+height; y++ {
		for x := x0; x < x0+width; x++ {
			p.backend.SetCell(x, y, ' ', StyleDialog)
		}
	}
	for i, line := range lines {
		p.drawText(x0+2, y0+1+i, x0+width, line, StyleDialog)
	}
}

func (p *Panel) drawText(x, y, maxX int, text string, style Style) {
	for _, r := range text {
		if x >= maxX {
			return
		}
		p.backend.SetCell(x, y, r, style)
		x++
	}
}

// wrapText is a naive word wrapper for dialog messages.
func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}
	var lines []string
	var cur string
	for _, word := range strings.Fields(text) {
		switch {
		case cur == "":
			cur = word
		case len(cur)+1+len(word) <= width:
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}
