// Package game plays rock/paper/scissors rounds against the live classifier.
package game

import "fmt"

// Move is a hand shape. The values match the classifier's class indices.
type Move int

const (
	Stone Move = iota
	Scissors
	Paper
)

// NumMoves is the number of distinct moves.
const NumMoves = 3

var moveNames = [...]string{"stone", "scissors", "paper"}

func (m Move) String() string {
	if !m.Valid() {
		return fmt.Sprintf("move(%d)", int(m))
	}
	return moveNames[m]
}

// Valid reports whether m is one of the three moves.
func (m Move) Valid() bool {
	return m >= 0 && m < NumMoves
}

// ParseMove accepts a move name as produced by String.
func ParseMove(s string) (Move, error) {
	for i, name := range moveNames {
		if name == s {
			return Move(i), nil
		}
	}
	return 0, fmt.Errorf("unknown move %q", s)
}

// Compare returns 1 if a beats b, 0 on a tie and -1 if b beats a.
// Each move beats the next one cyclically: stone > scissors > paper > stone.
func Compare(a, b Move) int {
	switch {
	case a == b:
		return 0
	case (a+1)%NumMoves == b:
		return 1
	default:
		return -1
	}
}

// Outcome is the result of a round from the human's point of view.
type Outcome int

const (
	Tie Outcome = iota
	HumanWins
	ComputerWins
)

func (o Outcome) String() string {
	switch o {
	case HumanWins:
		return "human"
	case ComputerWins:
		return "computer"
	default:
		return "tie"
	}
}

// Resolve scores human against computer.
func Resolve(human, computer Move) Outcome {
	switch Compare(human, computer) {
	case 1:
		return HumanWins
	case -1:
		return ComputerWins
	default:
		return Tie
	}
}

// Score is the cumulative number of rounds won by each side.
type Score struct {
	Human    int `json:"human"`
	Computer int `json:"computer"`
}

// Add returns s updated for outcome. Ties change nothing.
func (s Score) Add(o Outcome) Score {
	switch o {
	case HumanWins:
		s.Human++
	case ComputerWins:
		s.Computer++
	}
	return s
}
