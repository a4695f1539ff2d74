// Package selection turns pointer and keyboard events on transcript rows
// into a selection model: one active row for focus, or a checked set for
// batch operations. The two are mutually exclusive display modes; the
// checked set wins whenever it is non-empty.
package selection

import "math"

// DragThreshold is the pointer displacement (px) past which a pointer-down
// becomes a drag instead of a click.
const DragThreshold = 3.0

type phase int

const (
	phaseIdle phase = iota
	phasePointerDown
	phaseDragging
)

// Controller is the interaction state machine. It is driven by the UI
// thread only and performs no I/O.
type Controller struct {
	rows   []string
	rowIdx map[string]int

	phase     phase
	originRow string
	originX   float64
	originY   float64

	activeRow string
	checked   map[string]bool

	// A drag's terminating mouseup still fires a synthetic click on the row
	// under the pointer; that click must not collapse the drag selection
	// into a single active row.
	suppressClick bool

	panelExpanded bool

	// OnDragStart fires on the PointerDown -> Dragging transition so the
	// embedder can clear the browser text selection.
	OnDragStart func()
}

// NewController builds a controller over the currently filtered row list in
// display order.
func NewController(rows []string) *Controller {
	c := &Controller{}
	c.SetRows(rows)
	c.Reset()
	return c
}

// SetRows replaces the filtered row list (display order). Selection state
// referring to rows that no longer exist is dropped.
func (c *Controller) SetRows(rows []string) {
	c.rows = append([]string(nil), rows...)
	c.rowIdx = make(map[string]int, len(rows))
	for i, id := range rows {
		c.rowIdx[id] = i
	}

	if c.activeRow != "" {
		if _, ok := c.rowIdx[c.activeRow]; !ok {
			c.activeRow = ""
		}
	}
	for id := range c.checked {
		if _, ok := c.rowIdx[id]; !ok {
			delete(c.checked, id)
		}
	}
}

// Reset clears all selection state. Called on transcript or segment switch.
func (c *Controller) Reset() {
	c.phase = phaseIdle
	c.originRow = ""
	c.activeRow = ""
	c.checked = make(map[string]bool)
	c.suppressClick = false
	c.panelExpanded = false
}

// PointerDown records the gesture origin. Selection does not change yet;
// whether this was a click or a drag is only known later.
func (c *Controller) PointerDown(rowID string, x, y float64) {
	if _, ok := c.rowIdx[rowID]; !ok {
		return
	}
	c.phase = phasePointerDown
	c.originRow = rowID
	c.originX = x
	c.originY = y
	c.suppressClick = false
}

// PointerMove advances the gesture. Crossing the drag threshold converts
// the pointer-down into a drag: the active row clears, the origin row joins
// the checked set, and rows passed over gain membership. A drag never
// un-checks a row.
func (c *Controller) PointerMove(rowID string, x, y float64) {
	switch c.phase {
	case phasePointerDown:
		dx := x - c.originX
		dy := y - c.originY
		if math.Hypot(dx, dy) <= DragThreshold {
			return
		}
		c.phase = phaseDragging
		c.activeRow = ""
		c.check(c.originRow)
		if c.OnDragStart != nil {
			c.OnDragStart()
		}
		c.markOver(rowID)
	case phaseDragging:
		c.markOver(rowID)
	}
}

func (c *Controller) markOver(rowID string) {
	if _, ok := c.rowIdx[rowID]; !ok {
		return
	}
	c.check(rowID)
	// Fill the span between origin and the current row so fast pointer
	// movement cannot skip intermediate rows.
	from, okFrom := c.rowIdx[c.originRow]
	to, okTo := c.rowIdx[rowID]
	if !okFrom || !okTo {
		return
	}
	if from > to {
		from, to = to, from
	}
	for i := from; i <= to; i++ {
		c.check(c.rows[i])
	}
}

func (c *Controller) check(rowID string) {
	if !c.checked[rowID] {
		c.checked[rowID] = true
		c.panelExpanded = true
	}
}

// PointerUp ends the gesture globally, regardless of which row (if any) the
// pointer is over. A finished drag leaves the checked set as-is and
// suppresses the synthetic click that follows.
func (c *Controller) PointerUp() {
	wasDragging := c.phase == phaseDragging
	c.phase = phaseIdle
	c.originRow = ""
	c.suppressClick = wasDragging
}

// Click applies plain-click semantics: clear the checked set, focus the row
// and expand the annotation panel. The synthetic click fired by a drag's
// terminating mouseup is consumed without effect.
func (c *Controller) Click(rowID string) {
	if c.suppressClick {
		c.suppressClick = false
		return
	}
	if _, ok := c.rowIdx[rowID]; !ok {
		return
	}
	c.checked = make(map[string]bool)
	c.activeRow = rowID
	c.panelExpanded = true
}

// ToggleCheckbox flips the row's membership in the checked set without
// touching the active row. Checking the first row expands the panel.
func (c *Controller) ToggleCheckbox(rowID string) {
	if _, ok := c.rowIdx[rowID]; !ok {
		return
	}
	if c.checked[rowID] {
		delete(c.checked, rowID)
		return
	}
	if len(c.checked) == 0 {
		c.panelExpanded = true
	}
	c.checked[rowID] = true
}

// ArrowKey moves the active row by delta (-1 up, +1 down) through the
// filtered list. It only applies when a single row is focused: no checked
// set, no live drag, and focus not inside an editable field outside the
// panel. Returns the row to scroll into view.
func (c *Controller) ArrowKey(delta int, editableFocus bool) (string, bool) {
	if editableFocus || c.phase != phaseIdle || len(c.checked) > 0 || c.activeRow == "" {
		return "", false
	}
	i, ok := c.rowIdx[c.activeRow]
	if !ok {
		return "", false
	}
	next := i + delta
	if next < 0 || next >= len(c.rows) {
		return "", false
	}
	c.activeRow = c.rows[next]
	return c.activeRow, true
}

// Targets resolves the batch-operation target set: the checked set when
// non-empty, else the active row, else nothing. Order follows the row list.
func (c *Controller) Targets() []string {
	if len(c.checked) > 0 {
		ret := make([]string, 0, len(c.checked))
		for _, id := range c.rows {
			if c.checked[id] {
				ret = append(ret, id)
			}
		}
		return ret
	}
	if c.activeRow != "" {
		return []string{c.activeRow}
	}
	return nil
}

func (c *Controller) ActiveRow() (string, bool) {
	return c.activeRow, c.activeRow != ""
}

// SetActiveRow focuses a row directly, used by playback-driven tracking.
// It leaves the checked set alone: batch targets stay authoritative.
func (c *Controller) SetActiveRow(rowID string) {
	if _, ok := c.rowIdx[rowID]; !ok {
		return
	}
	c.activeRow = rowID
}

func (c *Controller) Checked() []string {
	ret := make([]string, 0, len(c.checked))
	for _, id := range c.rows {
		if c.checked[id] {
			ret = append(ret, id)
		}
	}
	return ret
}

func (c *Controller) IsChecked(rowID string) bool {
	return c.checked[rowID]
}

func (c *Controller) Dragging() bool {
	return c.phase == phaseDragging
}

func (c *Controller) PanelExpanded() bool {
	return c.panelExpanded
}
