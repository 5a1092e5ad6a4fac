// Package board implements the 3x3 grid rules: move application, win and draw
// detection, and symbol alternation. It performs no I/O and holds no state.
package board

// Size is the number of cells on the board.
const Size = 9

// Symbol is a marker a player places on the board. It doubles as the turn indicator.
type Symbol string

const (
	// None marks an unoccupied cell.
	None Symbol = ""
	// Wand is the first seat's symbol (symbol A).
	Wand Symbol = "🪄"
	// Wizard is the second seat's symbol (symbol B).
	Wizard Symbol = "🧙"
	// Draw is the winner sentinel for a full board without a completed line.
	Draw Symbol = "draw"
)

// Board is the fixed 9-cell grid in row-major order. The zero value is an empty board.
type Board [Size]Symbol

// Lines lists the winning triples in evaluation order: rows, columns, diagonals.
var Lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// ValidIndex reports whether i addresses a cell.
func ValidIndex(i int) bool {
	return i >= 0 && i < Size
}

// ApplyMove returns a copy of b with s placed at index.
//
// Precondition: ValidIndex(index); b[index] == None; s is Wand or Wizard.
// Postcondition: b is unchanged; the result differs from b only at index.
func ApplyMove(b Board, index int, s Symbol) Board {
	if !ValidIndex(index) {
		panic("board: ApplyMove index out of range")
	}
	if b[index] != None {
		panic("board: ApplyMove on occupied cell")
	}
	if s != Wand && s != Wizard {
		panic("board: ApplyMove with unknown symbol " + string(s))
	}
	b[index] = s
	return b
}

// CheckWinner returns the symbol of the first line in Lines whose three cells are
// occupied by the same symbol.
//
// Postcondition: ok is false iff no line is complete.
func CheckWinner(b Board) (winner Symbol, ok bool) {
	for _, line := range Lines {
		first := b[line[0]]
		if first != None && first == b[line[1]] && first == b[line[2]] {
			return first, true
		}
	}
	return None, false
}

// Full reports whether every cell is occupied.
func Full(b Board) bool {
	for _, c := range b {
		if c == None {
			return false
		}
	}
	return true
}

// IsDraw reports whether the board is full and no line is complete.
func IsDraw(b Board) bool {
	if !Full(b) {
		return false
	}
	_, won := CheckWinner(b)
	return !won
}

// Other returns the opposing symbol. Any value other than Wand maps to Wand.
func Other(s Symbol) Symbol {
	if s == Wand {
		return Wizard
	}
	return Wand
}

// Cells returns the board as wire strings, "" for empty cells.
func (b Board) Cells() []string {
	out := make([]string, Size)
	for i, c := range b {
		out[i] = string(c)
	}
	return out
}
