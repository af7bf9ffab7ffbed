package game

import (
	"challasaath/internal/board"
	"challasaath/internal/config"
	"challasaath/internal/protocol"
)

// Unassigned marks a slot without a color.
const Unassigned = -1

// ColorTable maps player slots to palette indices. The whole table is
// replicated through room properties and only the master writes it.
type ColorTable struct {
	Slots     [board.Players]int
	Available []int
	palette   []config.Color
}

// NewColorTable returns a table with every slot unassigned and the full palette free.
func NewColorTable(palette []config.Color) *ColorTable {
	if len(palette) == 0 {
		palette = config.DefaultPalette
	}
	t := &ColorTable{palette: palette}
	t.Reset()
	return t
}

// Reset unassigns every slot.
func (t *ColorTable) Reset() {
	for s := range t.Slots {
		t.Slots[s] = Unassigned
	}
	t.Available = make([]int, len(t.palette))
	for i := range t.palette {
		t.Available[i] = i
	}
}

// Assign gives slot the next free palette index. A slot keeps a color it already has.
func (t *ColorTable) Assign(slot int) (int, bool) {
	if slot < 0 || slot >= board.Players {
		return Unassigned, false
	}
	if t.Slots[slot] != Unassigned {
		return t.Slots[slot], true
	}
	if len(t.Available) == 0 {
		return Unassigned, false
	}
	idx := t.Available[0]
	t.Available = t.Available[1:]
	t.Slots[slot] = idx
	return idx, true
}

// Of returns the palette index of slot.
func (t *ColorTable) Of(slot int) int {
	if slot < 0 || slot >= board.Players {
		return Unassigned
	}
	return t.Slots[slot]
}

// Color resolves slot to its palette entry.
func (t *ColorTable) Color(slot int) (config.Color, bool) {
	idx := t.Of(slot)
	if idx < 0 || idx >= len(t.palette) {
		return config.Color{}, false
	}
	return t.palette[idx], true
}

// Props encodes the whole table as room properties.
func (t *ColorTable) Props() protocol.Props {
	props := protocol.Props{}
	_ = props.Set(protocol.PropPlayerColors, t.Slots[:])
	_ = props.Set(protocol.PropAvailableColors, t.Available)
	return props
}

// Apply replaces the table with the one carried in props and returns the
// slots whose color changed. Keys absent from props leave that part alone.
func (t *ColorTable) Apply(props protocol.Props) ([]int, error) {
	var slots []int
	ok, err := props.Get(protocol.PropPlayerColors, &slots)
	if err != nil {
		return nil, err
	}
	var changed []int
	if ok {
		for s := 0; s < board.Players; s++ {
			idx := Unassigned
			if s < len(slots) {
				idx = slots[s]
			}
			if t.Slots[s] != idx {
				t.Slots[s] = idx
				changed = append(changed, s)
			}
		}
	}
	var avail []int
	ok, err = props.Get(protocol.PropAvailableColors, &avail)
	if err != nil {
		return changed, err
	}
	if ok {
		t.Available = avail
	}
	return changed, nil
}
